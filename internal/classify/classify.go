// Package classify assigns a cheap productive/distracting verdict to a
// resource from keyword lists, and caches verdicts in the store so the
// matcher can later upgrade them authoritatively.
package classify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/focusd/internal/store"
)

// Verdict values for a classified resource.
const (
	Productive  = "productive"
	Distracting = "distracting"
	Neutral     = "neutral"
)

// Sources recorded with a cached verdict. The matcher is authoritative over
// the keyword lists: a "matcher" verdict is never downgraded by "keyword".
const (
	SourceKeyword = "keyword"
	SourceMatcher = "matcher"
)

// Result is one classification outcome.
type Result struct {
	Class   string
	IsVideo bool
}

// ClassStore is the persistence the classifier needs.
type ClassStore interface {
	GetClassification(resourceKey string) (store.Classification, error)
	SaveClassification(c store.Classification) error
}

// Classifier matches resource keys and titles against keyword lists.
type Classifier struct {
	store       ClassStore
	productive  []string
	distracting []string
	logger      *slog.Logger
}

// New creates a Classifier with the given keyword lists. Empty lists fall
// back to a small built-in set.
func New(cs ClassStore, productive, distracting []string) *Classifier {
	if len(productive) == 0 {
		productive = []string{"lecture", "course", "tutorial", "documentation", "algorithm"}
	}
	if len(distracting) == 0 {
		distracting = []string{"meme", "prank", "reaction", "shorts", "gaming"}
	}
	return &Classifier{
		store:       cs,
		productive:  lowerAll(productive),
		distracting: lowerAll(distracting),
		logger:      slog.Default(),
	}
}

// Classify returns the verdict for a resource, consulting the cache first. A
// cache miss runs the keyword match and stores the result. IsVideo is derived
// from the resource key shape ("platform:external_id").
func (c *Classifier) Classify(resourceKey, title string) Result {
	if cached, err := c.store.GetClassification(resourceKey); err == nil {
		return Result{Class: cached.Class, IsVideo: cached.IsVideo}
	}

	res := Result{
		Class:   matchKeywords(resourceKey+" "+title, c.productive, c.distracting),
		IsVideo: strings.Contains(resourceKey, ":"),
	}
	if err := c.store.SaveClassification(store.Classification{
		ResourceKey: resourceKey,
		Class:       res.Class,
		IsVideo:     res.IsVideo,
		Source:      SourceKeyword,
	}); err != nil {
		// Storage failure is fatal for the cache write only, not the verdict.
		c.logger.Warn("caching classification failed", "resource", resourceKey, "error", err)
	}
	return res
}

// UpgradeToProductive marks a resource productive on the matcher's authority.
func (c *Classifier) UpgradeToProductive(resourceKey string) error {
	existing, err := c.store.GetClassification(resourceKey)
	isVideo := strings.Contains(resourceKey, ":")
	if err == nil {
		isVideo = existing.IsVideo
	}
	if err := c.store.SaveClassification(store.Classification{
		ResourceKey: resourceKey,
		Class:       Productive,
		IsVideo:     isVideo,
		Source:      SourceMatcher,
	}); err != nil {
		return fmt.Errorf("upgrading classification for %s: %w", resourceKey, err)
	}
	return nil
}

// matchKeywords is the pure string-match verdict: productive keywords win
// over distracting ones, anything else is neutral.
func matchKeywords(text string, productive, distracting []string) string {
	lower := strings.ToLower(text)
	for _, kw := range productive {
		if strings.Contains(lower, kw) {
			return Productive
		}
	}
	for _, kw := range distracting {
		if strings.Contains(lower, kw) {
			return Distracting
		}
	}
	return Neutral
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
