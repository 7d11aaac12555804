package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
	"github.com/kalambet/focusd/internal/tracker"
)

type fakeSender struct {
	submitRecordFn func(ctx context.Context, rec remote.AttentionRecord) error
	submitBatchFn  func(ctx context.Context, recs []remote.AttentionRecord) (int, error)
}

func (f *fakeSender) SubmitRecord(ctx context.Context, rec remote.AttentionRecord) error {
	if f.submitRecordFn == nil {
		return nil
	}
	return f.submitRecordFn(ctx, rec)
}

func (f *fakeSender) SubmitBatch(ctx context.Context, recs []remote.AttentionRecord) (int, error) {
	if f.submitBatchFn == nil {
		return len(recs), nil
	}
	return f.submitBatchFn(ctx, recs)
}

func newTestSyncer(t *testing.T, sender *fakeSender) (*Syncer, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, sender), s
}

func sessionRecord(id string) tracker.Record {
	return tracker.Record{
		SessionID:   id,
		ResourceKey: "docs.example.com",
		Title:       "Docs",
		Kind:        tracker.RecordSession,
		Start:       time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		Duration:    30 * time.Second,
	}
}

func queueN(t *testing.T, sy *Syncer, n int) {
	t.Helper()
	for i := range n {
		sy.enqueue(sanitize(sessionRecord(fmt.Sprintf("rec-%03d", i))))
	}
}

func depth(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.QueueDepth()
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	return n
}

func TestDeliver_UnauthenticatedGoesToQueue(t *testing.T) {
	sender := &fakeSender{submitRecordFn: func(context.Context, remote.AttentionRecord) error {
		t.Error("SubmitRecord called while unauthenticated")
		return nil
	}}
	sy, s := newTestSyncer(t, sender)

	sy.deliver(context.Background(), sanitize(sessionRecord("rec-001")))

	if got := depth(t, s); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestDeliver_SendFailureFallsToQueue(t *testing.T) {
	sender := &fakeSender{submitRecordFn: func(context.Context, remote.AttentionRecord) error {
		return errors.New("connection refused")
	}}
	sy, s := newTestSyncer(t, sender)
	sy.SetAuthenticated(true)

	sy.deliver(context.Background(), sanitize(sessionRecord("rec-001")))

	if got := depth(t, s); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
	if !sy.Authenticated() {
		t.Error("transient failure must not suppress sends")
	}
}

func TestDeliver_UnauthorizedSuppressesSends(t *testing.T) {
	sender := &fakeSender{submitRecordFn: func(context.Context, remote.AttentionRecord) error {
		return remote.ErrUnauthorized
	}}
	sy, s := newTestSyncer(t, sender)
	sy.SetAuthenticated(true)

	sy.deliver(context.Background(), sanitize(sessionRecord("rec-001")))

	if sy.Authenticated() {
		t.Error("rejected credential left sends enabled")
	}
	if got := depth(t, s); got != 1 {
		t.Errorf("queue depth = %d, want 1 (record not lost)", got)
	}
}

func TestFlushQueue_ServerErrorKeepsQueue(t *testing.T) {
	sender := &fakeSender{submitBatchFn: func(context.Context, []remote.AttentionRecord) (int, error) {
		return 0, errors.New("HTTP 500")
	}}
	sy, s := newTestSyncer(t, sender)
	sy.SetAuthenticated(true)
	queueN(t, sy, 10)

	if err := sy.FlushQueue(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := depth(t, s); got != 10 {
		t.Errorf("queue depth after failed flush = %d, want 10", got)
	}

	// The service recovers and ingests the full batch.
	sender.submitBatchFn = func(_ context.Context, recs []remote.AttentionRecord) (int, error) {
		return len(recs), nil
	}
	if err := sy.FlushQueue(context.Background()); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if got := depth(t, s); got != 0 {
		t.Errorf("queue depth after successful flush = %d, want 0", got)
	}
}

func TestFlushQueue_PartialIngestRemovesPrefix(t *testing.T) {
	sender := &fakeSender{submitBatchFn: func(context.Context, []remote.AttentionRecord) (int, error) {
		return 4, nil
	}}
	sy, s := newTestSyncer(t, sender)
	sy.SetAuthenticated(true)
	queueN(t, sy, 10)

	if err := sy.FlushQueue(context.Background()); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}

	remaining, err := s.PeekAll()
	if err != nil {
		t.Fatalf("PeekAll: %v", err)
	}
	if len(remaining) != 6 {
		t.Fatalf("remaining = %d, want 6", len(remaining))
	}
	if remaining[0].ID != "rec-004" {
		t.Errorf("first remaining = %q, want rec-004", remaining[0].ID)
	}
}

func TestFlushQueue_BatchPreservesOrder(t *testing.T) {
	var sent []string
	sender := &fakeSender{submitBatchFn: func(_ context.Context, recs []remote.AttentionRecord) (int, error) {
		for _, r := range recs {
			sent = append(sent, r.ID)
		}
		return len(recs), nil
	}}
	sy, _ := newTestSyncer(t, sender)
	sy.SetAuthenticated(true)
	queueN(t, sy, 3)

	if err := sy.FlushQueue(context.Background()); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	want := []string{"rec-000", "rec-001", "rec-002"}
	if len(sent) != len(want) {
		t.Fatalf("sent %d records, want %d", len(sent), len(want))
	}
	for i, id := range want {
		if sent[i] != id {
			t.Errorf("sent[%d] = %q, want %q", i, sent[i], id)
		}
	}
}

func TestFlushQueue_SkipsWhenUnauthenticated(t *testing.T) {
	sender := &fakeSender{submitBatchFn: func(context.Context, []remote.AttentionRecord) (int, error) {
		t.Error("SubmitBatch called while unauthenticated")
		return 0, nil
	}}
	sy, s := newTestSyncer(t, sender)
	queueN(t, sy, 3)

	if err := sy.FlushQueue(context.Background()); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if got := depth(t, s); got != 3 {
		t.Errorf("queue depth = %d, want 3", got)
	}
}

func TestEmit_SavesRecentSession(t *testing.T) {
	sy, s := newTestSyncer(t, &fakeSender{})

	sy.Emit(sessionRecord("rec-001"))

	recent, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent sessions = %d, want 1", len(recent))
	}
	if recent[0].ID != "rec-001" || recent[0].DurationSeconds != 30 {
		t.Errorf("recent = %+v", recent[0])
	}
}

func TestEmit_HeartbeatSkipsRecentHistory(t *testing.T) {
	sy, s := newTestSyncer(t, &fakeSender{})

	sy.Emit(tracker.Record{SessionID: "hb-001", Kind: tracker.RecordHeartbeat, Start: time.Now()})

	recent, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("heartbeat stored in recent sessions: %+v", recent)
	}
}

func TestEmit_FullDispatchFallsToQueue(t *testing.T) {
	sy, s := newTestSyncer(t, &fakeSender{})

	// Without a running Run loop the dispatch channel fills up; overflow
	// must land in the durable queue, never block the tracker.
	for i := range cap(sy.dispatch) + 5 {
		sy.Emit(sessionRecord(fmt.Sprintf("rec-%03d", i)))
	}

	if got := depth(t, s); got != 5 {
		t.Errorf("queue depth = %d, want 5 overflow records", got)
	}
}

func TestSanitize(t *testing.T) {
	rec := sessionRecord("rec-001")
	rec.Title = strings.Repeat("x", 600)
	rec.Duration = -3 * time.Second
	rec.TabSwitches = -1

	wire := sanitize(rec)
	if got := len([]rune(wire.Title)); got != maxTitleRunes {
		t.Errorf("title length = %d, want %d", got, maxTitleRunes)
	}
	if wire.DurationSec != 0 {
		t.Errorf("duration = %v, want clamped 0", wire.DurationSec)
	}
	if wire.TabSwitches != 0 {
		t.Errorf("tab switches = %d, want clamped 0", wire.TabSwitches)
	}
	if wire.StartedAt != "2026-05-04T10:00:00Z" {
		t.Errorf("started_at = %q", wire.StartedAt)
	}
}
