package matcher

// Video is the observed resource to be matched, as reported by the host
// signals plus whatever metadata the classifier gathered.
type Video struct {
	ResourceKey string
	Title       string
	Channel     string
	DurationSec int
	Description string

	// Embedding is an optional semantic vector for the video, present when
	// the service returned one with the plan listings. Without it matching
	// falls back to keyword scoring.
	Embedding []float32
}

// Match types, ordered by tier.
const (
	MatchPending        = "pending"
	MatchPendingRewatch = "pending_rewatch"
	MatchSemantic       = "semantic"
	MatchKeyword        = "keyword"
	MatchRewatch        = "rewatch"
)

// Structured no-match reasons.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonNoPlans        = "no_plans"
	ReasonNetworkError   = "network_error"
)

// Match is a successful chapter assignment.
type Match struct {
	PlanID       string  `json:"plan_id"`
	ChapterIndex int     `json:"chapter_index"`
	ChapterTitle string  `json:"chapter_title"`
	MatchType    string  `json:"match_type"`
	Confidence   float64 `json:"confidence"`
}

// Result is the outcome of one match call: either a Match or a Reason.
type Result struct {
	Match  *Match `json:"match,omitempty"`
	Reason string `json:"reason,omitempty"`
}
