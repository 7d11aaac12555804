package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Agent state (tracker snapshot, credentials, local API token) ---

// SetState writes a key into the agent_state table.
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetState reads a key from the agent_state table.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM agent_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// RemoveState deletes a key. Removing a missing key is not an error.
func (s *Store) RemoveState(key string) error {
	_, err := s.db.Exec("DELETE FROM agent_state WHERE key = ?", key)
	return err
}

// --- Classification cache ---

// SaveClassification upserts the cached verdict for a resource.
func (s *Store) SaveClassification(c Classification) error {
	isVideo := 0
	if c.IsVideo {
		isVideo = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO classifications (resource_key, class, is_video, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource_key) DO UPDATE SET
			class = excluded.class, is_video = excluded.is_video,
			source = excluded.source, updated_at = excluded.updated_at`,
		c.ResourceKey, c.Class, isVideo, c.Source, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetClassification returns the cached verdict for a resource.
func (s *Store) GetClassification(resourceKey string) (Classification, error) {
	var c Classification
	var isVideo int
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT resource_key, class, is_video, source, updated_at
		FROM classifications WHERE resource_key = ?`, resourceKey,
	).Scan(&c.ResourceKey, &c.Class, &isVideo, &c.Source, &updatedAt)
	if err == sql.ErrNoRows {
		return Classification{}, ErrNotFound
	}
	if err != nil {
		return Classification{}, err
	}
	c.IsVideo = isVideo != 0
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Classification{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	c.UpdatedAt = t
	return c, nil
}

// --- Blocklist ---

// AddBlocked records a domain in the blocklist. Idempotent.
func (s *Store) AddBlocked(domain string) error {
	_, err := s.db.Exec(`
		INSERT INTO blocklist (domain, created_at) VALUES (?, ?)
		ON CONFLICT(domain) DO NOTHING`,
		domain, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RemoveBlocked deletes a domain from the blocklist.
func (s *Store) RemoveBlocked(domain string) error {
	_, err := s.db.Exec("DELETE FROM blocklist WHERE domain = ?", domain)
	return err
}

// ReplaceBlocked swaps the full blocked set atomically.
func (s *Store) ReplaceBlocked(domains []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM blocklist"); err != nil {
		return fmt.Errorf("clearing blocklist: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range domains {
		if _, err := tx.Exec(`
			INSERT INTO blocklist (domain, created_at) VALUES (?, ?)
			ON CONFLICT(domain) DO NOTHING`, d, now,
		); err != nil {
			return fmt.Errorf("inserting blocked domain %s: %w", d, err)
		}
	}
	return tx.Commit()
}

// ListBlocked returns all blocked domains in lexical order.
func (s *Store) ListBlocked() ([]string, error) {
	rows, err := s.db.Query("SELECT domain FROM blocklist ORDER BY domain ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// --- Recent sessions ---

const recentSessionsKept = 100

// SaveRecentSession retains a finalized record locally for the status
// surfaces, pruning to the most recent entries.
func (s *Store) SaveRecentSession(r RecentSession) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning recent-session transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO recent_sessions (id, resource_key, kind, title, start, duration_seconds, tab_switches, class, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ResourceKey, r.Kind, r.Title, r.Start.UTC().Format(time.RFC3339),
		r.DurationSeconds, r.TabSwitches, r.Class, createdAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting recent session: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM recent_sessions WHERE id IN (
			SELECT id FROM recent_sessions ORDER BY created_at DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, recentSessionsKept,
	); err != nil {
		return fmt.Errorf("pruning recent sessions: %w", err)
	}

	return tx.Commit()
}

// RecentSessions returns up to limit recent finalized records, newest first.
func (s *Store) RecentSessions(limit int) ([]RecentSession, error) {
	rows, err := s.db.Query(`
		SELECT id, resource_key, kind, title, start, duration_seconds, tab_switches, class, created_at
		FROM recent_sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RecentSession
	for rows.Next() {
		var r RecentSession
		var start, createdAt string
		if err := rows.Scan(&r.ID, &r.ResourceKey, &r.Kind, &r.Title, &start,
			&r.DurationSeconds, &r.TabSwitches, &r.Class, &createdAt); err != nil {
			return nil, err
		}
		if r.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing start: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
