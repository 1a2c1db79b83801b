package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/google/uuid"
)

// scheduleRow mirrors a schedules row before it is trusted as an sm2.State.
type scheduleRow struct {
	EaseFactor      float64 `validate:"gt=0"`
	IntervalDays    int     `validate:"gte=0"`
	RepetitionCount int     `validate:"gte=0"`
	NextReviewAt    int64
}

func (r scheduleRow) state(cardID string) (sm2.State, error) {
	if err := validate.Struct(r); err != nil {
		return sm2.State{}, fmt.Errorf("%w: card %s: %v", ErrCorruptState, cardID, err)
	}
	return sm2.State{
		EaseFactor:      r.EaseFactor,
		IntervalDays:    r.IntervalDays,
		RepetitionCount: r.RepetitionCount,
		NextReviewAt:    fromUnix(r.NextReviewAt),
	}, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSchedule(ctx context.Context, q queryRower, cardID string) (sm2.State, error) {
	var r scheduleRow
	err := q.QueryRowContext(ctx, `
		SELECT ease_factor, interval_days, repetition_count, next_review_at
		FROM schedules WHERE card_id = ?
	`, cardID).Scan(&r.EaseFactor, &r.IntervalDays, &r.RepetitionCount, &r.NextReviewAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sm2.State{}, fmt.Errorf("schedule for card %s: %w", cardID, ErrNotFound)
		}
		return sm2.State{}, fmt.Errorf("failed to get schedule for card %s: %w", cardID, err)
	}
	return r.state(cardID)
}

// GetSchedule returns the current schedule of a card.
func (db *DB) GetSchedule(ctx context.Context, cardID string) (sm2.State, error) {
	return getSchedule(ctx, db.conn, cardID)
}

// ApplyReview records one review of a card atomically: it reads the current
// schedule, passes it to advance, stores the result and appends a review log.
// If advance fails nothing is written and its error is returned unchanged.
func (db *DB) ApplyReview(ctx context.Context, cardID string, quality sm2.Quality, reviewedAt time.Time, advance func(prev sm2.State) (sm2.State, error)) (domain.ReviewLog, error) {
	var log domain.ReviewLog
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getSchedule(ctx, tx, cardID)
		if err != nil {
			return err
		}
		next, err := advance(prev)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET ease_factor = ?, interval_days = ?, repetition_count = ?, next_review_at = ?, updated_at = ?
			WHERE card_id = ?
		`,
			next.EaseFactor,
			next.IntervalDays,
			next.RepetitionCount,
			toUnix(next.NextReviewAt),
			toUnix(reviewedAt),
			cardID,
		); err != nil {
			return fmt.Errorf("failed to update schedule for card %s: %w", cardID, err)
		}

		log = domain.ReviewLog{
			ID:         uuid.NewString(),
			CardID:     cardID,
			Quality:    quality,
			ReviewedAt: reviewedAt.UTC(),
			Result:     next,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_logs (id, card_id, quality, reviewed_at, ease_factor, interval_days, repetition_count, next_review_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			log.ID,
			cardID,
			int(quality),
			toUnix(reviewedAt),
			next.EaseFactor,
			next.IntervalDays,
			next.RepetitionCount,
			toUnix(next.NextReviewAt),
		); err != nil {
			return fmt.Errorf("failed to insert review log for card %s: %w", cardID, err)
		}
		return nil
	})
	if err != nil {
		return domain.ReviewLog{}, err
	}
	return log, nil
}

// ReviewLogs returns the review history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, quality, reviewed_at, ease_factor, interval_days, repetition_count, next_review_at
		FROM review_logs WHERE card_id = ?
		ORDER BY reviewed_at, rowid
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l                  domain.ReviewLog
			quality            int
			reviewedAt, nextAt int64
		)
		if err := rows.Scan(&l.ID, &quality, &reviewedAt, &l.Result.EaseFactor, &l.Result.IntervalDays, &l.Result.RepetitionCount, &nextAt); err != nil {
			return nil, fmt.Errorf("failed to scan review log for card %s: %w", cardID, err)
		}
		l.CardID = cardID
		l.Quality = sm2.Quality(quality)
		l.ReviewedAt = fromUnix(reviewedAt)
		l.Result.NextReviewAt = fromUnix(nextAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DueCards returns cards whose next review is at or before now, earliest first.
// A limit of zero or less returns every due card.
func (db *DB) DueCards(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledCard, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.question, c.answer, c.context, c.created_at,
		       s.ease_factor, s.interval_days, s.repetition_count, s.next_review_at
		FROM schedules s JOIN cards c ON c.id = s.card_id
		WHERE s.next_review_at <= ?
		ORDER BY s.next_review_at, c.id
		LIMIT ?
	`, toUnix(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.ScheduledCard
	for rows.Next() {
		var (
			sc        domain.ScheduledCard
			createdAt int64
			r         scheduleRow
		)
		if err := rows.Scan(&sc.ID, &sc.Question, &sc.Answer, &sc.Context, &createdAt,
			&r.EaseFactor, &r.IntervalDays, &r.RepetitionCount, &r.NextReviewAt); err != nil {
			return nil, fmt.Errorf("failed to scan due card: %w", err)
		}
		sc.CreatedAt = fromUnix(createdAt)
		if sc.Schedule, err = r.state(sc.ID); err != nil {
			return nil, err
		}
		cards = append(cards, sc)
	}
	return cards, rows.Err()
}

// Stats counts cards by schedule phase as of now.
func (db *DB) Stats(ctx context.Context, now time.Time) (domain.DeckStats, error) {
	var s domain.DeckStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN repetition_count = 0 AND interval_days = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN repetition_count > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN next_review_at <= ? THEN 1 ELSE 0 END), 0)
		FROM schedules
	`, toUnix(now)).Scan(&s.Total, &s.New, &s.InProgress, &s.Due)
	if err != nil {
		return domain.DeckStats{}, fmt.Errorf("failed to compute deck stats: %w", err)
	}
	return s, nil
}
