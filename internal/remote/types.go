package remote

import "github.com/kalambet/focusd/internal/store"

// AttentionRecord is the wire shape the sync service ingests.
type AttentionRecord struct {
	ID            string  `json:"id"`
	ResourceKey   string  `json:"resource_key"`
	Title         string  `json:"title,omitempty"`
	Kind          string  `json:"kind"`
	StartedAt     string  `json:"started_at"` // RFC 3339
	DurationSec   float64 `json:"duration_seconds"`
	TabSwitches   int     `json:"tab_switches"`
	WindowFocused bool    `json:"window_focused"`
	Class         string  `json:"class,omitempty"`
}

// batchRequest wraps records for the batch-ingest endpoint.
type batchRequest struct {
	Records []AttentionRecord `json:"records"`
}

// batchResponse reports how many records the service accepted. A partial
// count acknowledges a prefix of the submitted batch.
type batchResponse struct {
	Ingested int `json:"ingested"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// PendingAssignment is a chapter the user explicitly queued a video for.
type PendingAssignment struct {
	PlanID       string `json:"plan_id"`
	ChapterIndex int    `json:"chapter_index"`
	ChapterTitle string `json:"chapter_title"`
	Completed    bool   `json:"completed"`
}

// wirePlan and wireChapter are the service's plan-listing shapes, converted
// to store types before caching.
type wirePlan struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Relevant bool          `json:"relevant"`
	Chapters []wireChapter `json:"chapters"`
}

type wireChapter struct {
	Index     int           `json:"index"`
	Title     string        `json:"title"`
	Keywords  []wireKeyword `json:"keywords"`
	Completed bool          `json:"completed"`
	Embedding []float32     `json:"embedding,omitempty"`
}

type wireKeyword struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

func (p wirePlan) toStore() store.Plan {
	plan := store.Plan{
		ID:       p.ID,
		Title:    p.Title,
		Relevant: p.Relevant,
		Source:   "remote",
	}
	for _, ch := range p.Chapters {
		sc := store.Chapter{
			Index:     ch.Index,
			Title:     ch.Title,
			Completed: ch.Completed,
			Embedding: ch.Embedding,
		}
		for _, kw := range ch.Keywords {
			sc.Keywords = append(sc.Keywords, store.WeightedKeyword{Word: kw.Word, Weight: kw.Weight})
		}
		plan.Chapters = append(plan.Chapters, sc)
	}
	return plan
}

// MatchReport tells the service which chapter a watched video was matched to.
type MatchReport struct {
	ResourceKey  string  `json:"resource_key"`
	PlanID       string  `json:"plan_id"`
	ChapterIndex int     `json:"chapter_index"`
	MatchType    string  `json:"match_type"`
	Confidence   float64 `json:"confidence"`
}
