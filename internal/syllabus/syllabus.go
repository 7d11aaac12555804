// Package syllabus imports a course syllabus PDF into a local learning
// plan, so the matcher has a locally-seeded plan source in addition to the
// remote listings.
package syllabus

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/focusd/internal/store"
)

// ImportPDF extracts chapter headings from a syllabus PDF and returns a
// plan ready to save. title overrides the plan title; empty derives it from
// the file's first heading-like line.
func ImportPDF(path, title string) (store.Plan, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return store.Plan{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return store.Plan{}, fmt.Errorf("extracting text from %s: %w", path, err)
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return store.Plan{}, fmt.Errorf("reading extracted text: %w", err)
	}

	chapters := ExtractChapters(string(text))
	if len(chapters) == 0 {
		return store.Plan{}, fmt.Errorf("no chapter headings found in %s", path)
	}

	if title == "" {
		title = firstLine(string(text))
	}
	if title == "" {
		title = "Imported syllabus"
	}

	return store.Plan{
		ID:       uuid.New().String(),
		Title:    title,
		Relevant: true,
		Source:   "syllabus",
		Chapters: chapters,
	}, nil
}

// headingRe matches syllabus section headings: "Chapter 3: Trees",
// "Week 2 - Sorting", "Unit 1. Graphs", "3. Dynamic Programming".
var headingRe = regexp.MustCompile(`(?mi)^\s*(?:(?:chapter|week|unit|module|lecture|part)\s+)?(\d+)\s*[.:\-–—]\s+(.+?)\s*$`)

// ExtractChapters finds chapter headings in extracted syllabus text and
// derives importance-weighted keywords from each heading.
func ExtractChapters(text string) []store.Chapter {
	var chapters []store.Chapter
	seen := make(map[string]bool)

	for _, m := range headingRe.FindAllStringSubmatch(text, -1) {
		title := strings.TrimSpace(m[2])
		if title == "" || seen[strings.ToLower(title)] {
			continue
		}
		// Page numbers and dates make short all-digit "titles"; skip them.
		if isNumeric(title) {
			continue
		}
		seen[strings.ToLower(title)] = true
		chapters = append(chapters, store.Chapter{
			Index:    len(chapters),
			Title:    title,
			Keywords: headingKeywords(title),
		})
	}
	return chapters
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "introduction": true,
	"into": true, "from": true, "basics": true, "overview": true, "intro": true,
}

// headingKeywords turns a heading into weighted keywords: every significant
// word counts, longer words weigh more since they discriminate better.
func headingKeywords(title string) []store.WeightedKeyword {
	var kws []store.WeightedKeyword
	for _, word := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		weight := 0.5
		if len(word) >= 6 {
			weight = 1.0
		}
		kws = append(kws, store.WeightedKeyword{Word: word, Weight: weight})
	}
	return kws
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 4 && !isNumeric(line) {
			return line
		}
	}
	return ""
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
