// Package review connects the scheduler to the schedule store.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/sm2"
)

// Store is the persistence the review service needs.
type Store interface {
	FindCard(ctx context.Context, id string) (domain.ScheduledCard, error)
	ApplyReview(ctx context.Context, cardID string, quality sm2.Quality, reviewedAt time.Time, advance func(prev sm2.State) (sm2.State, error)) (domain.ReviewLog, error)
	DueCards(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledCard, error)
	ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error)
	Stats(ctx context.Context, now time.Time) (domain.DeckStats, error)
}

// Service records reviews and answers queue queries.
type Service struct {
	store     Store
	scheduler *sm2.Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for review timestamps and due queries.
// It should be the same clock the scheduler was built with.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service recording reviews in store.
func NewService(store Store, scheduler *sm2.Scheduler, opts ...Option) *Service {
	s := &Service{
		store:     store,
		scheduler: scheduler,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Review applies a review of the given quality to a card and returns the
// resulting log entry. An invalid quality fails before the store is touched.
func (s *Service) Review(ctx context.Context, cardID string, q sm2.Quality) (domain.ReviewLog, error) {
	if err := q.Validate(); err != nil {
		return domain.ReviewLog{}, err
	}

	log, err := s.store.ApplyReview(ctx, cardID, q, s.now(), func(prev sm2.State) (sm2.State, error) {
		return s.scheduler.Advance(prev, q)
	})
	if err != nil {
		return domain.ReviewLog{}, fmt.Errorf("review card %s: %w", cardID, err)
	}

	s.logger.Debug("card reviewed",
		"card_id", cardID,
		"quality", q.String(),
		"ease_factor", log.Result.EaseFactor,
		"interval_days", log.Result.IntervalDays,
		"repetition_count", log.Result.RepetitionCount,
		"next_review_at", log.Result.NextReviewAt,
	)
	return log, nil
}

// Due returns up to limit cards that are due now, earliest first.
func (s *Service) Due(ctx context.Context, limit int) ([]domain.ScheduledCard, error) {
	return s.store.DueCards(ctx, s.now(), limit)
}

// Card returns a card and its current schedule.
func (s *Service) Card(ctx context.Context, cardID string) (domain.ScheduledCard, error) {
	return s.store.FindCard(ctx, cardID)
}

// Preview returns the schedule each quality would produce for a card,
// without recording anything.
func (s *Service) Preview(ctx context.Context, cardID string) (map[sm2.Quality]sm2.State, error) {
	card, err := s.store.FindCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Preview(card.Schedule), nil
}

// History returns the review log of a card, oldest first.
func (s *Service) History(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	if _, err := s.store.FindCard(ctx, cardID); err != nil {
		return nil, err
	}
	return s.store.ReviewLogs(ctx, cardID)
}

// Stats summarizes the deck as of now.
func (s *Service) Stats(ctx context.Context) (domain.DeckStats, error) {
	return s.store.Stats(ctx, s.now())
}
