package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/sm2"
)

// InsertCard stores a new card together with its initial schedule and links
// it to sourceID. It reports false when a card with the same id already
// exists; the existing schedule is kept and the card gains sourceID as an
// additional owner. A sourceID of zero stores the card without an owner.
func (db *DB) InsertCard(ctx context.Context, card domain.Card, sourceID int64, initial sm2.State, createdAt time.Time) (bool, error) {
	inserted := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, question, answer, context, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			card.ID,
			card.Question,
			card.Answer,
			card.Context,
			toUnix(createdAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO schedules (card_id, ease_factor, interval_days, repetition_count, next_review_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`,
				card.ID,
				initial.EaseFactor,
				initial.IntervalDays,
				initial.RepetitionCount,
				toUnix(initial.NextReviewAt),
				toUnix(createdAt),
			); err != nil {
				return fmt.Errorf("failed to insert schedule for card %s: %w", card.ID, err)
			}
			inserted = true
		}

		if sourceID <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_sources (card_id, source_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, card.ID, sourceID); err != nil {
			return fmt.Errorf("failed to link card %s to source ID %d: %w", card.ID, sourceID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// FindCard returns a card and its schedule.
func (db *DB) FindCard(ctx context.Context, id string) (domain.ScheduledCard, error) {
	var (
		sc        domain.ScheduledCard
		createdAt int64
		r         scheduleRow
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT c.id, c.question, c.answer, c.context, c.created_at,
		       s.ease_factor, s.interval_days, s.repetition_count, s.next_review_at
		FROM cards c JOIN schedules s ON s.card_id = c.id
		WHERE c.id = ?
	`, id).Scan(&sc.ID, &sc.Question, &sc.Answer, &sc.Context, &createdAt,
		&r.EaseFactor, &r.IntervalDays, &r.RepetitionCount, &r.NextReviewAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ScheduledCard{}, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return domain.ScheduledCard{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	sc.CreatedAt = fromUnix(createdAt)
	if sc.Schedule, err = r.state(id); err != nil {
		return domain.ScheduledCard{}, err
	}
	return sc, nil
}

// CardIDsBySource returns the ids of all cards linked to a source.
func (db *DB) CardIDsBySource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id FROM card_sources WHERE source_id = ? ORDER BY card_id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DetachCard removes sourceID as an owner of a card. The card, its schedule
// and its review history are deleted only once no source owns it; deleted
// reports whether that happened.
func (db *DB) DetachCard(ctx context.Context, cardID string, sourceID int64) (bool, error) {
	deleted := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM card_sources WHERE card_id = ? AND source_id = ?
		`, cardID, sourceID)
		if err != nil {
			return fmt.Errorf("failed to detach card %s from source ID %d: %w", cardID, sourceID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("card %s in source ID %d: %w", cardID, sourceID, ErrNotFound)
		}

		res, err = tx.ExecContext(ctx, `
			DELETE FROM cards
			WHERE id = ? AND NOT EXISTS (SELECT 1 FROM card_sources WHERE card_id = cards.id)
		`, cardID)
		if err != nil {
			return fmt.Errorf("failed to delete card %s: %w", cardID, err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
