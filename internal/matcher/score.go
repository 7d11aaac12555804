package matcher

import (
	"math"
	"strings"

	"github.com/kalambet/focusd/internal/store"
)

// keywordScore is the importance-weighted fraction of a chapter's keywords
// present in the video text: sum of matched weights over the total weight.
func keywordScore(text string, keywords []store.WeightedKeyword) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)

	var matched, total float64
	for _, kw := range keywords {
		total += kw.Weight
		if strings.Contains(lower, strings.ToLower(kw.Word)) {
			matched += kw.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// cosine returns the cosine similarity of two vectors, 0 for mismatched
// lengths or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	aNorm, bNorm := norm(a), norm(b)
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
