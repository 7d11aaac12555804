package store

import (
	"errors"
	"testing"
	"time"
)

func TestState_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetState("tracker.state", `{"resource_key":"youtube.com"}`); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	v, err := s.GetState("tracker.state")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v != `{"resource_key":"youtube.com"}` {
		t.Errorf("GetState = %q", v)
	}

	// Upsert replaces.
	if err := s.SetState("tracker.state", `{}`); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	v, err = s.GetState("tracker.state")
	if err != nil {
		t.Fatalf("GetState after overwrite: %v", err)
	}
	if v != `{}` {
		t.Errorf("GetState after overwrite = %q, want {}", v)
	}

	if err := s.RemoveState("tracker.state"); err != nil {
		t.Fatalf("RemoveState: %v", err)
	}
	if _, err := s.GetState("tracker.state"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetState after remove: err = %v, want ErrNotFound", err)
	}
}

func TestClassification_Cache(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetClassification("reddit.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetClassification on empty cache: err = %v, want ErrNotFound", err)
	}

	c := Classification{
		ResourceKey: "youtube:abc123",
		Class:       "distracting",
		IsVideo:     true,
		Source:      "keyword",
	}
	if err := s.SaveClassification(c); err != nil {
		t.Fatalf("SaveClassification: %v", err)
	}

	// The matcher may later upgrade the verdict.
	c.Class = "productive"
	c.Source = "matcher"
	if err := s.SaveClassification(c); err != nil {
		t.Fatalf("SaveClassification upgrade: %v", err)
	}

	got, err := s.GetClassification("youtube:abc123")
	if err != nil {
		t.Fatalf("GetClassification: %v", err)
	}
	if got.Class != "productive" || got.Source != "matcher" || !got.IsVideo {
		t.Errorf("GetClassification = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestBlocklist_CRUD(t *testing.T) {
	s := openTestStore(t)

	for _, d := range []string{"reddit.com", "twitter.com", "reddit.com"} {
		if err := s.AddBlocked(d); err != nil {
			t.Fatalf("AddBlocked %s: %v", d, err)
		}
	}

	domains, err := s.ListBlocked()
	if err != nil {
		t.Fatalf("ListBlocked: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("ListBlocked returned %d domains, want 2 (duplicates collapsed)", len(domains))
	}
	if domains[0] != "reddit.com" || domains[1] != "twitter.com" {
		t.Errorf("ListBlocked = %v", domains)
	}

	if err := s.RemoveBlocked("reddit.com"); err != nil {
		t.Fatalf("RemoveBlocked: %v", err)
	}
	domains, err = s.ListBlocked()
	if err != nil {
		t.Fatalf("ListBlocked after remove: %v", err)
	}
	if len(domains) != 1 || domains[0] != "twitter.com" {
		t.Errorf("ListBlocked after remove = %v", domains)
	}

	if err := s.ReplaceBlocked([]string{"a.com", "b.com", "c.com"}); err != nil {
		t.Fatalf("ReplaceBlocked: %v", err)
	}
	domains, err = s.ListBlocked()
	if err != nil {
		t.Fatalf("ListBlocked after replace: %v", err)
	}
	if len(domains) != 3 || domains[0] != "a.com" {
		t.Errorf("ListBlocked after replace = %v", domains)
	}
}

func TestRecentSessions_Pruned(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < recentSessionsKept+10; i++ {
		r := RecentSession{
			ID:              uuidLike(i),
			ResourceKey:     "youtube.com",
			Kind:            "session",
			Title:           "lecture",
			Start:           base.Add(time.Duration(i) * time.Minute),
			DurationSeconds: 30,
			Class:           "productive",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRecentSession(r); err != nil {
			t.Fatalf("SaveRecentSession %d: %v", i, err)
		}
	}

	all, err := s.RecentSessions(recentSessionsKept * 2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(all) != recentSessionsKept {
		t.Fatalf("retained %d sessions, want %d", len(all), recentSessionsKept)
	}
	// Newest first.
	if !all[0].Start.After(all[len(all)-1].Start) {
		t.Errorf("RecentSessions not newest-first: first=%v last=%v", all[0].Start, all[len(all)-1].Start)
	}
}

func uuidLike(i int) string {
	return time.Date(2026, 5, 1, 0, 0, i, 0, time.UTC).Format("20060102150405") + string(rune('a'+i%26))
}

func TestPlans_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := Plan{
		ID:       "plan-1",
		Title:    "Data Structures",
		Relevant: true,
		Source:   "remote",
		Chapters: []Chapter{
			{
				Index: 0,
				Title: "Binary Trees",
				Keywords: []WeightedKeyword{
					{Word: "tree", Weight: 2.0},
					{Word: "traversal", Weight: 1.5},
				},
				Embedding: []float32{0.1, -0.5, 0.9},
			},
			{Index: 1, Title: "Graphs", Keywords: []WeightedKeyword{{Word: "graph", Weight: 1.0}}, Completed: true},
		},
	}
	if err := s.SavePlan(p); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	plans, err := s.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("ListPlans returned %d plans, want 1", len(plans))
	}
	got := plans[0]
	if got.Title != "Data Structures" || !got.Relevant || len(got.Chapters) != 2 {
		t.Fatalf("plan = %+v", got)
	}
	ch := got.Chapters[0]
	if ch.Title != "Binary Trees" || len(ch.Keywords) != 2 || ch.Keywords[0].Word != "tree" {
		t.Errorf("chapter 0 = %+v", ch)
	}
	if len(ch.Embedding) != 3 || ch.Embedding[2] != 0.9 {
		t.Errorf("embedding = %v", ch.Embedding)
	}
	if !got.Chapters[1].Completed {
		t.Error("chapter 1 should be completed")
	}

	// SavePlan replaces the chapter set.
	p.Chapters = p.Chapters[:1]
	if err := s.SavePlan(p); err != nil {
		t.Fatalf("SavePlan replace: %v", err)
	}
	plans, err = s.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans after replace: %v", err)
	}
	if len(plans[0].Chapters) != 1 {
		t.Errorf("chapters after replace = %d, want 1", len(plans[0].Chapters))
	}

	if err := s.DeletePlan("plan-1"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	if err := s.DeletePlan("plan-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeletePlan twice: err = %v, want ErrNotFound", err)
	}
}
