// Package tracker owns the attention-session state machine: it turns the
// stream of host signals into bounded, non-overlapping session records.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/focusd/internal/classify"
	"github.com/kalambet/focusd/internal/store"
)

// Config holds the tracker's timing policy. Zero fields take defaults.
type Config struct {
	TickInterval time.Duration // flush cadence (default 30s)
	MaxSession   time.Duration // per-record duration bound (default 65s)
	MinSession   time.Duration // records shorter than this are noise (default 1s)
	FocusGrace   time.Duration // debounce for window-focus loss (default 5s)

	// HeartbeatTicks and SuperviseTicks count tick periods between heartbeat
	// emission and the supervisory idle-pause recheck respectively.
	HeartbeatTicks int // default 10
	SuperviseTicks int // default 4
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.MaxSession <= 0 {
		c.MaxSession = 65 * time.Second
	}
	if c.MinSession <= 0 {
		c.MinSession = time.Second
	}
	if c.FocusGrace <= 0 {
		c.FocusGrace = 5 * time.Second
	}
	if c.HeartbeatTicks <= 0 {
		c.HeartbeatTicks = 10
	}
	if c.SuperviseTicks <= 0 {
		c.SuperviseTicks = 4
	}
	return c
}

// Sink receives finalized records. Implementations must not block for long;
// the syncer hands records off to its own dispatch loop.
type Sink interface {
	Emit(rec Record)
}

// StateStore persists the tracker snapshot across restarts.
type StateStore interface {
	SetState(key, value string) error
	GetState(key string) (string, error)
}

// ResourceClassifier supplies the verdict used for the idle policy.
type ResourceClassifier interface {
	Classify(resourceKey, title string) classify.Result
}

const stateKey = "tracker.state"

type session struct {
	id          string
	resourceKey string
	title       string
	start       time.Time
	tabSwitches int
	class       string
	isVideo     bool
}

// Tracker is the single logical owner of mutable session state. All signal
// handlers and the periodic tick funnel through one serialized mutation path;
// concurrent finalize calls on the same session would double-count duration.
type Tracker struct {
	cfg        Config
	store      StateStore
	sink       Sink
	classifier ResourceClassifier
	now        func() time.Time
	logger     *slog.Logger
	events     chan Event

	mu            sync.Mutex
	cur           *session
	windowFocused bool
	focusLostAt   *time.Time // pending debounced focus loss
	idle          IdleState
	lastKey       string // last attended resource, reopened on focus/active regain
	lastTitle     string
	pausedKey     string // resource paused by plain idle, for the supervisory recheck
	pausedTitle   string
	finalizing    bool
	ticks         int
}

// New creates a Tracker. The caller runs it with Run and feeds it with Submit.
func New(cfg Config, st StateStore, sink Sink, classifier ResourceClassifier) *Tracker {
	return &Tracker{
		cfg:           cfg.withDefaults(),
		store:         st,
		sink:          sink,
		classifier:    classifier,
		now:           time.Now,
		logger:        slog.Default(),
		events:        make(chan Event, 128),
		windowFocused: true,
		idle:          IdleActive,
	}
}

// Submit queues a host signal for the tracker goroutine.
func (t *Tracker) Submit(ev Event) {
	t.events <- ev
}

// Run consumes events and ticks until ctx is cancelled, then finalizes the
// open session so shutdown never loses attended time.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Shutdown()
			return
		case ev := <-t.events:
			t.apply(ev)
		case now := <-ticker.C:
			t.apply(Tick(now))
		}
	}
}

// Shutdown finalizes the current session and persists state.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalizeLocked(t.now())
	t.persistLocked()
}

// Snapshot is a consistent by-value view of the current session for the
// status surfaces. Async readers never see a live mutable reference.
type Snapshot struct {
	Active        bool      `json:"active"`
	ResourceKey   string    `json:"resource_key,omitempty"`
	Title         string    `json:"title,omitempty"`
	Start         time.Time `json:"start,omitempty"`
	TabSwitches   int       `json:"tab_switches"`
	WindowFocused bool      `json:"window_focused"`
	Class         string    `json:"class,omitempty"`
}

// Snapshot returns the current session state by value.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{WindowFocused: t.windowFocused}
	if t.cur != nil {
		snap.Active = true
		snap.ResourceKey = t.cur.resourceKey
		snap.Title = t.cur.title
		snap.Start = t.cur.start
		snap.TabSwitches = t.cur.tabSwitches
		snap.Class = t.cur.class
	}
	return snap
}

// apply is the single serialized mutation path.
func (t *Tracker) apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := ev.Time
	if at.IsZero() {
		at = t.now()
	}

	// An expired focus-loss grace window takes effect before the new signal.
	t.checkFocusDebounceLocked(at)

	switch ev.Kind {
	case KindResourceChanged:
		t.resourceChangedLocked(at, ev.ResourceKey, ev.Title)
	case KindWindowFocus:
		t.windowFocusLocked(at, ev.Focused)
	case KindIdle:
		t.idleChangedLocked(at, ev.Idle)
	case KindResourceClosed:
		t.resourceClosedLocked(at, ev.ResourceKey)
	case KindTick:
		t.tickLocked(at)
	}
	t.persistLocked()
}

func (t *Tracker) resourceChangedLocked(at time.Time, key, title string) {
	t.pausedKey, t.pausedTitle = "", ""

	if t.cur != nil {
		if t.cur.resourceKey == key {
			// Returning to the same resource within the session counts as a
			// tab switch, not a new session.
			t.cur.tabSwitches++
			return
		}
		t.finalizeLocked(at)
	}
	if t.idle == IdleLocked {
		t.lastKey, t.lastTitle = key, title
		return
	}
	t.openLocked(at, key, title)
}

func (t *Tracker) windowFocusLocked(at time.Time, focused bool) {
	if focused {
		t.windowFocused = true
		t.focusLostAt = nil
		if t.cur == nil && t.lastKey != "" && t.idle != IdleLocked {
			t.openLocked(at, t.lastKey, t.lastTitle)
		}
		return
	}

	t.windowFocused = false
	if t.cur != nil && t.focusLostAt == nil {
		// Held for the grace window before being treated as real, to
		// tolerate brief alt-tabbing.
		lost := at
		t.focusLostAt = &lost
	}
}

func (t *Tracker) idleChangedLocked(at time.Time, state IdleState) {
	prev := t.idle
	t.idle = state

	switch state {
	case IdleActive:
		if prev == IdleActive {
			return
		}
		if t.cur == nil && t.windowFocused {
			switch {
			case t.pausedKey != "":
				t.openLocked(at, t.pausedKey, t.pausedTitle)
				t.pausedKey, t.pausedTitle = "", ""
			case t.lastKey != "":
				t.openLocked(at, t.lastKey, t.lastTitle)
			}
		}

	case IdleLocked:
		// A genuine lock always ends the session, productive video included.
		t.pausedKey, t.pausedTitle = "", ""
		t.finalizeLocked(at)

	case IdleIdle:
		if t.cur == nil {
			return
		}
		if t.cur.class == classify.Productive && t.cur.isVideo {
			// Passive video watching produces no input; plain inactivity
			// must not end the session.
			return
		}
		t.pausedKey, t.pausedTitle = t.cur.resourceKey, t.cur.title
		t.finalizeLocked(at)
	}
}

func (t *Tracker) resourceClosedLocked(at time.Time, key string) {
	if t.cur != nil && t.cur.resourceKey == key {
		t.finalizeLocked(at)
	}
	if t.lastKey == key {
		t.lastKey, t.lastTitle = "", ""
	}
	if t.pausedKey == key {
		t.pausedKey, t.pausedTitle = "", ""
	}
}

func (t *Tracker) tickLocked(at time.Time) {
	t.ticks++

	if t.ticks%t.cfg.HeartbeatTicks == 0 {
		t.sink.Emit(Record{
			SessionID: uuid.New().String(),
			Kind:      RecordHeartbeat,
			Start:     at,
		})
	}

	if t.ticks%t.cfg.SuperviseTicks == 0 {
		t.superviseLocked(at)
	}

	if t.cur == nil {
		return
	}

	// Finalize-and-reopen: a continuously watched resource produces a
	// sequence of bounded records rather than one unbounded one.
	key, title := t.cur.resourceKey, t.cur.title
	t.finalizeLocked(at)
	if t.windowFocused && t.idle != IdleLocked && t.focusLostAt == nil {
		t.openLocked(at, key, title)
	}
}

// superviseLocked is the low-frequency recheck that re-asserts an open
// session when plain idle incorrectly paused a productive video: the
// classification may have been upgraded by the matcher after the pause.
func (t *Tracker) superviseLocked(at time.Time) {
	if t.cur != nil || t.pausedKey == "" || t.idle == IdleLocked || !t.windowFocused {
		return
	}
	res := t.classifier.Classify(t.pausedKey, t.pausedTitle)
	if res.Class == classify.Productive && res.IsVideo {
		t.logger.Info("reopening session paused by idle", "resource", t.pausedKey)
		t.openLocked(at, t.pausedKey, t.pausedTitle)
		t.pausedKey, t.pausedTitle = "", ""
	}
}

func (t *Tracker) checkFocusDebounceLocked(at time.Time) {
	if t.focusLostAt == nil {
		return
	}
	if at.Sub(*t.focusLostAt) < t.cfg.FocusGrace {
		return
	}
	// The loss held past the grace window: attention ended when focus left,
	// not now.
	lost := *t.focusLostAt
	t.focusLostAt = nil
	t.finalizeLocked(lost)
}

func (t *Tracker) openLocked(at time.Time, key, title string) {
	res := t.classifier.Classify(key, title)
	t.cur = &session{
		id:          uuid.New().String(),
		resourceKey: key,
		title:       title,
		start:       at,
		class:       res.Class,
		isVideo:     res.IsVideo,
	}
	t.lastKey, t.lastTitle = key, title
}

// finalizeLocked emits the current session as a record and closes it.
// Idempotent per call frame: with no open session, or re-entered mid-flight,
// it is a no-op.
func (t *Tracker) finalizeLocked(at time.Time) {
	if t.cur == nil || t.finalizing {
		return
	}
	t.finalizing = true
	defer func() { t.finalizing = false }()

	duration := at.Sub(t.cur.start)
	if duration < 0 {
		duration = 0
	}
	if duration > t.cfg.MaxSession {
		// Elapsed wall clock past the bound means the process or host was
		// suspended; the gap is not genuine attention.
		duration = t.cfg.MaxSession
	}

	if duration >= t.cfg.MinSession {
		t.sink.Emit(Record{
			SessionID:     t.cur.id,
			ResourceKey:   t.cur.resourceKey,
			Title:         t.cur.title,
			Kind:          RecordSession,
			Start:         t.cur.start,
			Duration:      duration,
			TabSwitches:   t.cur.tabSwitches,
			WindowFocused: t.windowFocused,
			Class:         t.cur.class,
		})
	}

	t.lastKey, t.lastTitle = t.cur.resourceKey, t.cur.title
	t.cur = nil
}

// persistedState is the serialized tracker snapshot written after every
// state-affecting event.
type persistedState struct {
	SessionID   string    `json:"session_id,omitempty"`
	ResourceKey string    `json:"resource_key,omitempty"`
	Title       string    `json:"title,omitempty"`
	Start       time.Time `json:"start,omitempty"`
	TabSwitches int       `json:"tab_switches,omitempty"`
	Class       string    `json:"class,omitempty"`
	IsVideo     bool      `json:"is_video,omitempty"`

	LastKey     string    `json:"last_key,omitempty"`
	LastTitle   string    `json:"last_title,omitempty"`
	PausedKey   string    `json:"paused_key,omitempty"`
	PausedTitle string    `json:"paused_title,omitempty"`
	Idle        IdleState `json:"idle,omitempty"`
}

func (t *Tracker) persistLocked() {
	st := persistedState{
		LastKey:     t.lastKey,
		LastTitle:   t.lastTitle,
		PausedKey:   t.pausedKey,
		PausedTitle: t.pausedTitle,
		Idle:        t.idle,
	}
	if t.cur != nil {
		st.SessionID = t.cur.id
		st.ResourceKey = t.cur.resourceKey
		st.Title = t.cur.title
		st.Start = t.cur.start
		st.TabSwitches = t.cur.tabSwitches
		st.Class = t.cur.class
		st.IsVideo = t.cur.isVideo
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.logger.Error("marshaling tracker state", "error", err)
		return
	}
	// Storage failure is fatal for this write only, never for the agent.
	if err := t.store.SetState(stateKey, string(data)); err != nil {
		t.logger.Warn("persisting tracker state failed", "error", err)
	}
}

// RestoreFromStore rebuilds tracker state from the last persisted snapshot.
// A restored open session whose elapsed time already exceeds the max-session
// bound is discarded: that elapsed time is a sleep/suspend gap, not real
// attention.
func (t *Tracker) RestoreFromStore() error {
	data, err := t.store.GetState(stateKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var st persistedState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastKey, t.lastTitle = st.LastKey, st.LastTitle
	t.pausedKey, t.pausedTitle = st.PausedKey, st.PausedTitle
	if st.Idle != "" {
		t.idle = st.Idle
	}

	if st.ResourceKey == "" {
		return nil
	}
	if elapsed := t.now().Sub(st.Start); elapsed > t.cfg.MaxSession {
		t.logger.Info("discarding stale restored session",
			"resource", st.ResourceKey, "elapsed", t.now().Sub(st.Start))
		t.persistLocked()
		return nil
	}
	t.cur = &session{
		id:          st.SessionID,
		resourceKey: st.ResourceKey,
		title:       st.Title,
		start:       st.Start,
		tabSwitches: st.TabSwitches,
		class:       st.Class,
		isVideo:     st.IsVideo,
	}
	return nil
}
