package tracker

import "time"

// EventKind discriminates host signals delivered to the tracker.
type EventKind int

const (
	KindResourceChanged EventKind = iota
	KindWindowFocus
	KindIdle
	KindResourceClosed
	KindTick
)

// IdleState is the host-level input-activity state.
type IdleState string

const (
	IdleActive IdleState = "active"
	IdleIdle   IdleState = "idle"
	IdleLocked IdleState = "locked"
)

// Event is one timestamped host signal. All signal sources funnel events
// through the tracker's single consumer goroutine.
type Event struct {
	Kind        EventKind
	Time        time.Time
	ResourceKey string
	Title       string
	Focused     bool
	Idle        IdleState
}

// ResourceChanged reports attention moving to a new resource.
func ResourceChanged(at time.Time, resourceKey, title string) Event {
	return Event{Kind: KindResourceChanged, Time: at, ResourceKey: resourceKey, Title: title}
}

// WindowFocusChanged reports the host window gaining or losing OS focus.
func WindowFocusChanged(at time.Time, focused bool) Event {
	return Event{Kind: KindWindowFocus, Time: at, Focused: focused}
}

// UserIdleChanged reports an input-inactivity or lock transition.
func UserIdleChanged(at time.Time, state IdleState) Event {
	return Event{Kind: KindIdle, Time: at, Idle: state}
}

// ResourceClosed reports that a resource was closed.
func ResourceClosed(at time.Time, resourceKey string) Event {
	return Event{Kind: KindResourceClosed, Time: at, ResourceKey: resourceKey}
}

// Tick is the periodic flush signal bounding session duration.
func Tick(at time.Time) Event {
	return Event{Kind: KindTick, Time: at}
}

// Record is a finalized attention interval (or a heartbeat) emitted by the
// tracker. Passed by value; the sink never sees live session state.
type Record struct {
	SessionID     string
	ResourceKey   string
	Title         string
	Kind          string // "session" or "heartbeat"
	Start         time.Time
	Duration      time.Duration
	TabSwitches   int
	WindowFocused bool
	Class         string
}

// Record kinds.
const (
	RecordSession   = "session"
	RecordHeartbeat = "heartbeat"
)
