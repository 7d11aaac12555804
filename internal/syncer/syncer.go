// Package syncer moves finalized records from the tracker to the remote
// service, falling back to the durable queue whenever a send cannot happen
// right now. Delivery is at-least-once: a record is removed from the queue
// only after the service acknowledged it.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
	"github.com/kalambet/focusd/internal/tracker"
)

const (
	defaultFlushInterval = time.Minute
	sendTimeout          = 20 * time.Second
)

// QueueStore is the durable-queue persistence the syncer needs.
type QueueStore interface {
	Enqueue(rec store.QueuedRecord) error
	PeekAll() ([]store.QueuedRecord, error)
	RemoveFirst(n int) error
	SaveRecentSession(r store.RecentSession) error
}

// Sender is the remote surface used for delivery.
type Sender interface {
	SubmitRecord(ctx context.Context, rec remote.AttentionRecord) error
	SubmitBatch(ctx context.Context, recs []remote.AttentionRecord) (int, error)
}

// Syncer accepts records from the tracker on its Emit path and delivers
// them on its own goroutine, so tracker mutation never waits on the network.
type Syncer struct {
	store   QueueStore
	sender  Sender
	logger  *slog.Logger
	flushIv time.Duration

	dispatch      chan remote.AttentionRecord
	authenticated atomic.Bool
}

// New creates a Syncer. It starts unauthenticated; SetAuthenticated flips it
// once a credential is installed or restored.
func New(qs QueueStore, sender Sender) *Syncer {
	return &Syncer{
		store:    qs,
		sender:   sender,
		logger:   slog.Default(),
		flushIv:  defaultFlushInterval,
		dispatch: make(chan remote.AttentionRecord, 64),
	}
}

// SetAuthenticated toggles direct sends. While false every record goes
// straight to the queue; the next successful login both flips this and
// triggers a flush.
func (s *Syncer) SetAuthenticated(ok bool) {
	s.authenticated.Store(ok)
}

// Authenticated reports whether direct sends are currently enabled.
func (s *Syncer) Authenticated() bool {
	return s.authenticated.Load()
}

// Emit implements tracker.Sink. It must not block: when the dispatch loop
// is backed up, the record goes to the durable queue instead.
func (s *Syncer) Emit(rec tracker.Record) {
	wire := sanitize(rec)

	if rec.Kind == tracker.RecordSession {
		if err := s.store.SaveRecentSession(store.RecentSession{
			ID:              rec.SessionID,
			ResourceKey:     rec.ResourceKey,
			Kind:            rec.Kind,
			Title:           wire.Title,
			Start:           rec.Start,
			DurationSeconds: int(rec.Duration.Seconds()),
			TabSwitches:     rec.TabSwitches,
			Class:           rec.Class,
		}); err != nil {
			s.logger.Warn("saving recent session failed", "error", err)
		}
	}

	select {
	case s.dispatch <- wire:
	default:
		s.enqueue(wire)
	}
}

// Run consumes dispatched records and periodically flushes the queue until
// ctx is cancelled. Records still in the dispatch channel at shutdown are
// drained into the queue so nothing is lost.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushIv)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case wire := <-s.dispatch:
			s.deliver(ctx, wire)
		case <-ticker.C:
			if err := s.FlushQueue(ctx); err != nil {
				s.logger.Debug("queue flush failed", "error", err)
			}
		}
	}
}

// deliver tries a direct send; any failure routes the record to the queue.
// An auth rejection additionally suppresses further direct sends.
func (s *Syncer) deliver(ctx context.Context, wire remote.AttentionRecord) {
	if !s.authenticated.Load() {
		s.enqueue(wire)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := s.sender.SubmitRecord(sendCtx, wire)
	cancel()
	if err == nil {
		return
	}

	if errors.Is(err, remote.ErrUnauthorized) {
		s.logger.Warn("credential rejected, queueing until re-login")
		s.authenticated.Store(false)
	} else {
		s.logger.Debug("direct send failed, queueing", "record", wire.ID, "error", err)
	}
	s.enqueue(wire)
}

// FlushQueue submits all queued records as one batch and removes exactly
// the accepted prefix. A partial ingest count leaves the tail queued for
// the next flush.
func (s *Syncer) FlushQueue(ctx context.Context) error {
	if !s.authenticated.Load() {
		return nil
	}

	queued, err := s.store.PeekAll()
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}

	recs := make([]remote.AttentionRecord, 0, len(queued))
	for _, q := range queued {
		rec, err := decodePayload(q)
		if err != nil {
			s.logger.Warn("skipping undecodable queued record", "id", q.ID, "error", err)
			// Coerce rather than drop: send what we know about it.
			rec = remote.AttentionRecord{ID: q.ID, Kind: q.Kind, StartedAt: q.EnqueuedAt.Format(time.RFC3339)}
		}
		recs = append(recs, rec)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	accepted, err := s.sender.SubmitBatch(sendCtx, recs)
	cancel()
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			s.authenticated.Store(false)
		}
		return err
	}
	if accepted > len(queued) {
		accepted = len(queued)
	}

	if err := s.store.RemoveFirst(accepted); err != nil {
		// The service has the records; a removal failure means a later
		// duplicate send, which at-least-once delivery permits.
		return err
	}
	if accepted > 0 {
		s.logger.Info("flushed queued records", "count", accepted, "remaining", len(queued)-accepted)
	}
	return nil
}

func (s *Syncer) enqueue(wire remote.AttentionRecord) {
	rec, err := encodePayload(wire)
	if err != nil {
		s.logger.Error("encoding record for queue", "id", wire.ID, "error", err)
		return
	}
	if err := s.store.Enqueue(rec); err != nil {
		s.logger.Warn("enqueueing record failed", "id", wire.ID, "error", err)
	}
}

func (s *Syncer) drain() {
	for {
		select {
		case wire := <-s.dispatch:
			s.enqueue(wire)
		default:
			return
		}
	}
}
