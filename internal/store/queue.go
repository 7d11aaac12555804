package store

import (
	"fmt"
	"time"
)

const defaultQueueCapacity = 500

// Enqueue appends a record to the durable queue. When the bounded capacity is
// exceeded the oldest entries are evicted first; bounded data loss is
// acceptable, unbounded growth is not.
func (s *Store) Enqueue(rec QueuedRecord) error {
	capacity := s.queueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	enqueuedAt := rec.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO queue (id, kind, payload_json, enqueued_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.PayloadJSON, enqueuedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting queued record: %w", err)
	}

	// Evict oldest entries past capacity within the same transaction so a
	// crash never leaves the queue oversized.
	if _, err := tx.Exec(`
		DELETE FROM queue WHERE seq IN (
			SELECT seq FROM queue ORDER BY seq ASC
			LIMIT (SELECT MAX(COUNT(*) - ?, 0) FROM queue)
		)`, capacity,
	); err != nil {
		return fmt.Errorf("evicting oldest queued records: %w", err)
	}

	return tx.Commit()
}

// PeekAll returns every queued record in enqueue order without removing any.
func (s *Store) PeekAll() ([]QueuedRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, id, kind, payload_json, enqueued_at
		FROM queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer rows.Close()

	var records []QueuedRecord
	for rows.Next() {
		var r QueuedRecord
		var enqueuedAt string
		if err := rows.Scan(&r.Seq, &r.ID, &r.Kind, &r.PayloadJSON, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning queued record: %w", err)
		}
		t, err := time.Parse(time.RFC3339, enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing enqueued_at for %s: %w", r.ID, err)
		}
		r.EnqueuedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// RemoveFirst removes the n oldest records. Callers must only invoke this
// after the remote service has acknowledged acceptance; a partial batch
// acceptance removes only the accepted prefix.
func (s *Store) RemoveFirst(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM queue WHERE seq IN (
			SELECT seq FROM queue ORDER BY seq ASC LIMIT ?
		)`, n)
	if err != nil {
		return fmt.Errorf("removing %d queued records: %w", n, err)
	}
	return nil
}

// QueueDepth returns the number of records currently queued.
func (s *Store) QueueDepth() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM queue").Scan(&count)
	return count, err
}
