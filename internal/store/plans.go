package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SavePlan upserts a plan and replaces its chapter set in one transaction.
func (s *Store) SavePlan(p Plan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning plan transaction: %w", err)
	}
	defer tx.Rollback()

	relevant := 0
	if p.Relevant {
		relevant = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO plans (id, title, relevant, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, relevant = excluded.relevant,
			source = excluded.source, updated_at = excluded.updated_at`,
		p.ID, p.Title, relevant, p.Source, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("upserting plan %s: %w", p.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM chapters WHERE plan_id = ?", p.ID); err != nil {
		return fmt.Errorf("clearing chapters for plan %s: %w", p.ID, err)
	}

	for _, ch := range p.Chapters {
		keywords, err := json.Marshal(ch.Keywords)
		if err != nil {
			return fmt.Errorf("marshaling keywords for chapter %d: %w", ch.Index, err)
		}
		completed := 0
		if ch.Completed {
			completed = 1
		}
		var embedding []byte
		if len(ch.Embedding) > 0 {
			embedding = encodeFloat32s(ch.Embedding)
		}
		if _, err := tx.Exec(`
			INSERT INTO chapters (plan_id, idx, title, keywords_json, completed, embedding)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, ch.Index, ch.Title, string(keywords), completed, embedding,
		); err != nil {
			return fmt.Errorf("inserting chapter %d of plan %s: %w", ch.Index, p.ID, err)
		}
	}

	return tx.Commit()
}

// ListPlans returns all cached plans with their chapters in index order.
func (s *Store) ListPlans() ([]Plan, error) {
	rows, err := s.db.Query(`
		SELECT id, title, relevant, source, updated_at
		FROM plans ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		var relevant int
		var updatedAt string
		if err := rows.Scan(&p.ID, &p.Title, &relevant, &p.Source, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		p.Relevant = relevant != 0
		if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for plan %s: %w", p.ID, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range plans {
		chapters, err := s.planChapters(plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Chapters = chapters
	}
	return plans, nil
}

func (s *Store) planChapters(planID string) ([]Chapter, error) {
	rows, err := s.db.Query(`
		SELECT idx, title, keywords_json, completed, embedding
		FROM chapters WHERE plan_id = ? ORDER BY idx ASC`, planID)
	if err != nil {
		return nil, fmt.Errorf("querying chapters for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var ch Chapter
		var keywordsJSON string
		var completed int
		var embedding []byte
		if err := rows.Scan(&ch.Index, &ch.Title, &keywordsJSON, &completed, &embedding); err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &ch.Keywords); err != nil {
			return nil, fmt.Errorf("parsing keywords for chapter %d of plan %s: %w", ch.Index, planID, err)
		}
		ch.Completed = completed != 0
		if len(embedding) > 0 {
			vec, err := decodeFloat32s(embedding)
			if err != nil {
				return nil, fmt.Errorf("decoding embedding for chapter %d of plan %s: %w", ch.Index, planID, err)
			}
			ch.Embedding = vec
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// DeletePlan removes a plan and its chapters.
func (s *Store) DeletePlan(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chapters WHERE plan_id = ?", id); err != nil {
		return fmt.Errorf("deleting chapters for plan %s: %w", id, err)
	}
	res, err := tx.Exec("DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
