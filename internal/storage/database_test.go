package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertCard(t *testing.T, db *DB, id string, sourceID int64, state sm2.State) {
	t.Helper()
	ok, err := db.InsertCard(context.Background(), domain.Card{ID: id, Question: "Q " + id, Answer: "A " + id}, sourceID, state, t0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInsertAndFindCard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	initial := sm2.Init(sm2.DefaultPolicy(), t0)

	insertCard(t, db, "card-1", 0, initial)

	got, err := db.FindCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "Q card-1", got.Question)
	assert.Equal(t, "A card-1", got.Answer)
	assert.Equal(t, 2.5, got.Schedule.EaseFactor)
	assert.True(t, got.Schedule.IsNew())
	assert.True(t, got.Schedule.NextReviewAt.Equal(t0))
	assert.True(t, got.CreatedAt.Equal(t0))

	t.Run("duplicate insert is ignored", func(t *testing.T) {
		ok, err := db.InsertCard(ctx, domain.Card{ID: "card-1", Question: "other"}, 0, sm2.State{EaseFactor: 1.3}, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := db.FindCard(ctx, "card-1")
		require.NoError(t, err)
		assert.Equal(t, "Q card-1", got.Question)
		assert.Equal(t, 2.5, got.Schedule.EaseFactor)
		assert.True(t, got.CreatedAt.Equal(t0))
	})

	t.Run("missing card", func(t *testing.T) {
		_, err := db.FindCard(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = db.GetSchedule(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestApplyReview(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	p := sm2.DefaultPolicy()
	insertCard(t, db, "card-1", 0, sm2.Init(p, t0))

	advance := func(q sm2.Quality, now time.Time) func(sm2.State) (sm2.State, error) {
		return func(prev sm2.State) (sm2.State, error) {
			return sm2.Next(p, prev, q, now)
		}
	}

	log, err := db.ApplyReview(ctx, "card-1", sm2.Easy, t0, advance(sm2.Easy, t0))
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)
	assert.Equal(t, 1, log.Result.IntervalDays)

	day1 := t0.AddDate(0, 0, 1)
	_, err = db.ApplyReview(ctx, "card-1", sm2.Easy, day1, advance(sm2.Easy, day1))
	require.NoError(t, err)

	state, err := db.GetSchedule(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 6, state.IntervalDays)
	assert.Equal(t, 2, state.RepetitionCount)
	assert.True(t, state.NextReviewAt.Equal(time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC)))

	t.Run("failing advance writes nothing", func(t *testing.T) {
		_, err := db.ApplyReview(ctx, "card-1", 5, day1, advance(5, day1))
		assert.ErrorIs(t, err, sm2.ErrInvalidQuality)

		after, err := db.GetSchedule(ctx, "card-1")
		require.NoError(t, err)
		assert.Equal(t, state, after)

		logs, err := db.ReviewLogs(ctx, "card-1")
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("history is ordered", func(t *testing.T) {
		logs, err := db.ReviewLogs(ctx, "card-1")
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.True(t, logs[0].ReviewedAt.Equal(t0))
		assert.True(t, logs[1].ReviewedAt.Equal(day1))
		assert.Equal(t, sm2.Easy, logs[1].Quality)
		assert.Equal(t, 6, logs[1].Result.IntervalDays)
	})

	t.Run("unknown card", func(t *testing.T) {
		called := false
		_, err := db.ApplyReview(ctx, "nope", sm2.Easy, t0, func(prev sm2.State) (sm2.State, error) {
			called = true
			return prev, nil
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, called)
	})

	t.Run("advance error is returned unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := db.ApplyReview(ctx, "card-1", sm2.Easy, t0, func(sm2.State) (sm2.State, error) {
			return sm2.State{}, boom
		})
		assert.Same(t, boom, err)
	})
}

func TestCorruptScheduleIsRejected(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertCard(t, db, "card-1", 0, sm2.Init(sm2.DefaultPolicy(), t0))

	_, err := db.conn.Exec(`UPDATE schedules SET interval_days = -4 WHERE card_id = ?`, "card-1")
	require.NoError(t, err)

	_, err = db.GetSchedule(ctx, "card-1")
	assert.ErrorIs(t, err, ErrCorruptState)
	_, err = db.FindCard(ctx, "card-1")
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestDueCardsAndStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	insertCard(t, db, "b-new", 0, sm2.State{EaseFactor: 2.5, NextReviewAt: t0})
	insertCard(t, db, "a-new", 0, sm2.State{EaseFactor: 2.5, NextReviewAt: t0})
	insertCard(t, db, "overdue", 0, sm2.State{EaseFactor: 2.3, IntervalDays: 6, RepetitionCount: 2, NextReviewAt: t0.AddDate(0, 0, -2)})
	insertCard(t, db, "later", 0, sm2.State{EaseFactor: 2.5, IntervalDays: 1, RepetitionCount: 1, NextReviewAt: t0.AddDate(0, 0, 1)})

	due, err := db.DueCards(ctx, t0, 0)
	require.NoError(t, err)
	ids := make([]string, len(due))
	for i, c := range due {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"overdue", "a-new", "b-new"}, ids)

	limited, err := db.DueCards(ctx, t0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "overdue", limited[0].ID)
	assert.Equal(t, 6, limited[0].Schedule.IntervalDays)

	stats, err := db.Stats(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.DeckStats{Total: 4, New: 2, InProgress: 2, Due: 3}, stats)
}

func TestStatsEmpty(t *testing.T) {
	stats, err := openTestDB(t).Stats(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.DeckStats{}, stats)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "/decks/biology", SourceLocal)
	require.NoError(t, err)
	_, err = db.InsertSource(ctx, "/decks/biology", SourceLocal)
	assert.Error(t, err, "paths are unique")

	src, err := db.FindSourceByPath(ctx, "/decks/biology")
	require.NoError(t, err)
	assert.Equal(t, id, src.ID)
	assert.Nil(t, src.LastScanned)

	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, t0))
	all, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastScanned)
	assert.True(t, all[0].LastScanned.Equal(t0))

	insertCard(t, db, "owned", id, sm2.Init(sm2.DefaultPolicy(), t0))
	ids, err := db.CardIDsBySource(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"owned"}, ids)

	require.NoError(t, db.DeleteSource(ctx, id))
	_, err = db.FindCard(ctx, "owned")
	assert.ErrorIs(t, err, ErrNotFound, "cards are removed with their source")
	assert.ErrorIs(t, db.DeleteSource(ctx, id), ErrNotFound)
	_, err = db.FindSourceByPath(ctx, "/decks/biology")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDetachCard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := db.InsertSource(ctx, "/decks/first", SourceLocal)
	require.NoError(t, err)
	second, err := db.InsertSource(ctx, "/decks/second", SourceLocal)
	require.NoError(t, err)

	p := sm2.DefaultPolicy()
	insertCard(t, db, "shared", first, sm2.Init(p, t0))
	ok, err := db.InsertCard(ctx, domain.Card{ID: "shared", Question: "Q shared"}, second, sm2.Init(p, t0.Add(time.Hour)), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "the existing card is linked, not recreated")

	reviewed, err := db.ApplyReview(ctx, "shared", sm2.Easy, t0, func(prev sm2.State) (sm2.State, error) {
		return sm2.Next(p, prev, sm2.Easy, t0)
	})
	require.NoError(t, err)

	for _, src := range []int64{first, second} {
		ids, err := db.CardIDsBySource(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, []string{"shared"}, ids)
	}

	deleted, err := db.DetachCard(ctx, "shared", first)
	require.NoError(t, err)
	assert.False(t, deleted)

	state, err := db.GetSchedule(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, reviewed.Result, state, "schedule survives while another source owns the card")
	logs, err := db.ReviewLogs(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = db.DetachCard(ctx, "shared", first)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = db.DetachCard(ctx, "shared", second)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = db.GetSchedule(ctx, "shared")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSourceKeepsSharedCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := db.InsertSource(ctx, "/decks/first", SourceLocal)
	require.NoError(t, err)
	second, err := db.InsertSource(ctx, "/decks/second", SourceLocal)
	require.NoError(t, err)

	initial := sm2.Init(sm2.DefaultPolicy(), t0)
	insertCard(t, db, "shared", first, initial)
	_, err = db.InsertCard(ctx, domain.Card{ID: "shared"}, second, initial, t0)
	require.NoError(t, err)
	insertCard(t, db, "only-first", first, initial)
	insertCard(t, db, "unowned", 0, initial)

	require.NoError(t, db.DeleteSource(ctx, first))

	_, err = db.FindCard(ctx, "only-first")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.FindCard(ctx, "shared")
	assert.NoError(t, err)
	_, err = db.FindCard(ctx, "unowned")
	assert.NoError(t, err)

	ids, err := db.CardIDsBySource(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, ids)
}

func TestLongRunOfEasyReviews(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	p := sm2.DefaultPolicy()
	insertCard(t, db, "card-1", 0, sm2.Init(p, t0))

	// Reviewing ahead of schedule lets the interval grow without the clock moving.
	prev := sm2.Init(p, t0)
	for i := 1; i <= 25; i++ {
		log, err := db.ApplyReview(ctx, "card-1", sm2.Easy, t0, func(s sm2.State) (sm2.State, error) {
			return sm2.Next(p, s, sm2.Easy, t0)
		})
		require.NoError(t, err)

		stored, err := db.GetSchedule(ctx, "card-1")
		require.NoError(t, err)
		assert.Equal(t, log.Result, stored, "review %d", i)
		require.False(t, stored.NextReviewAt.Before(prev.NextReviewAt),
			"review %d: next review moved from %v to %v", i, prev.NextReviewAt, stored.NextReviewAt)
		require.True(t, stored.NextReviewAt.After(t0), "review %d", i)
		prev = stored
	}
	assert.Equal(t, sm2.IntervalLimitDays, prev.IntervalDays)

	due, err := db.DueCards(ctx, t0, 0)
	require.NoError(t, err)
	assert.Empty(t, due)
	stats, err := db.Stats(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.DeckStats{Total: 1, InProgress: 1}, stats)
}
