package classify

import (
	"testing"

	"github.com/kalambet/focusd/internal/store"
)

func newTestClassifier(t *testing.T) (*Classifier, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil, nil), s
}

func TestClassify_Keywords(t *testing.T) {
	c, _ := newTestClassifier(t)

	tests := []struct {
		resourceKey string
		title       string
		wantClass   string
		wantVideo   bool
	}{
		{"youtube:abc", "Algorithms lecture 3", Productive, true},
		{"youtube:def", "Top 10 memes of the week", Distracting, true},
		{"example.com", "Some page", Neutral, false},
		{"news.ycombinator.com", "Show HN: a course on Go", Productive, false},
	}
	for _, tt := range tests {
		got := c.Classify(tt.resourceKey, tt.title)
		if got.Class != tt.wantClass {
			t.Errorf("Classify(%q, %q).Class = %q, want %q", tt.resourceKey, tt.title, got.Class, tt.wantClass)
		}
		if got.IsVideo != tt.wantVideo {
			t.Errorf("Classify(%q, %q).IsVideo = %v, want %v", tt.resourceKey, tt.title, got.IsVideo, tt.wantVideo)
		}
	}
}

func TestClassify_CacheWinsOverKeywords(t *testing.T) {
	c, s := newTestClassifier(t)

	// First pass classifies by keywords and caches.
	got := c.Classify("youtube:xyz", "reaction compilation")
	if got.Class != Distracting {
		t.Fatalf("initial class = %q, want distracting", got.Class)
	}

	// The matcher upgrades the verdict; the keyword path must not undo it.
	if err := c.UpgradeToProductive("youtube:xyz"); err != nil {
		t.Fatalf("UpgradeToProductive: %v", err)
	}
	got = c.Classify("youtube:xyz", "reaction compilation")
	if got.Class != Productive {
		t.Errorf("class after upgrade = %q, want productive", got.Class)
	}

	cached, err := s.GetClassification("youtube:xyz")
	if err != nil {
		t.Fatalf("GetClassification: %v", err)
	}
	if cached.Source != SourceMatcher {
		t.Errorf("cached source = %q, want matcher", cached.Source)
	}
	if !cached.IsVideo {
		t.Error("IsVideo lost during upgrade")
	}
}
