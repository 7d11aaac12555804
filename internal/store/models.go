package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// QueuedRecord is a finalized session or heartbeat in wire shape, waiting for
// remote acknowledgement. Immutable once enqueued; removed only after the
// remote service accepts it.
type QueuedRecord struct {
	Seq         int64
	ID          string
	Kind        string // "session" or "heartbeat"
	PayloadJSON string
	EnqueuedAt  time.Time
}

// Classification is a cached productive/distracting verdict for a resource.
type Classification struct {
	ResourceKey string
	Class       string // "productive", "distracting", "neutral"
	IsVideo     bool
	Source      string // "keyword" or "matcher"
	UpdatedAt   time.Time
}

// RecentSession is a locally retained copy of a finalized session record,
// kept for the status surfaces after the record itself has been shipped.
type RecentSession struct {
	ID              string
	ResourceKey     string
	Kind            string
	Title           string
	Start           time.Time
	DurationSeconds int
	TabSwitches     int
	Class           string
	CreatedAt       time.Time
}

// Plan is a learning plan with its chapters, cached locally so the matcher
// can run while the remote service is unreachable.
type Plan struct {
	ID        string
	Title     string
	Relevant  bool   // plan judged topically relevant by the remote service
	Source    string // "remote" or "syllabus"
	UpdatedAt time.Time
	Chapters  []Chapter
}

// Chapter is one unit of a plan. Keywords carry per-word importance weights;
// Embedding is an optional precomputed vector for semantic scoring.
type Chapter struct {
	Index     int
	Title     string
	Keywords  []WeightedKeyword
	Completed bool
	Embedding []float32
}

// WeightedKeyword pairs a keyword with its importance weight.
type WeightedKeyword struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}
