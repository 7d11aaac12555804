package syncer

import (
	"time"

	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/tracker"
)

const maxTitleRunes = 512

// sanitize converts a tracker record into the wire shape. Out-of-range
// values are coerced and clamped, never dropped: a malformed record still
// carries real attended time.
func sanitize(rec tracker.Record) remote.AttentionRecord {
	duration := rec.Duration
	if duration < 0 {
		duration = 0
	}
	tabSwitches := rec.TabSwitches
	if tabSwitches < 0 {
		tabSwitches = 0
	}
	start := rec.Start
	if start.IsZero() {
		start = time.Now()
	}

	return remote.AttentionRecord{
		ID:            rec.SessionID,
		ResourceKey:   rec.ResourceKey,
		Title:         truncateRunes(rec.Title, maxTitleRunes),
		Kind:          rec.Kind,
		StartedAt:     start.UTC().Format(time.RFC3339),
		DurationSec:   duration.Seconds(),
		TabSwitches:   tabSwitches,
		WindowFocused: rec.WindowFocused,
		Class:         rec.Class,
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
