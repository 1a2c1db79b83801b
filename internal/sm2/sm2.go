// Package sm2 implements the flashcard review scheduler, a variant of the
// SM-2 spaced repetition formula.
//
// Init and Next are pure: every input, including the current instant, is
// passed in. Scheduler binds a Policy and a clock for callers that want the
// two-operation interface.
package sm2

import (
	"math"
	"time"
)

// Init returns the schedule of a newly created flashcard. It is due at now.
func Init(p Policy, now time.Time) State {
	return State{
		EaseFactor:      p.InitialEase,
		IntervalDays:    0,
		RepetitionCount: 0,
		NextReviewAt:    now,
	}
}

// Next computes the schedule that follows prev after a review of quality q at now.
// prev is not modified. An out-of-range quality returns ErrInvalidQuality and a zero State.
func Next(p Policy, prev State, q Quality, now time.Time) (State, error) {
	if err := q.Validate(); err != nil {
		return State{}, err
	}

	next := State{EaseFactor: nextEase(p, prev.EaseFactor, q)}

	if !q.Passed() {
		// Due again right away so the learner can retry within the same session.
		next.RepetitionCount = 0
		next.IntervalDays = 0
		next.NextReviewAt = now
		return next, nil
	}

	limit := p.intervalLimit()
	next.RepetitionCount = prev.RepetitionCount + 1
	switch next.RepetitionCount {
	case 1:
		next.IntervalDays = min(p.FirstIntervalDays, limit)
	case 2:
		next.IntervalDays = min(p.SecondIntervalDays, limit)
	default:
		next.IntervalDays = growInterval(prev.IntervalDays, next.EaseFactor, limit)
	}
	next.NextReviewAt = dueAt(p, now, next.IntervalDays)
	return next, nil
}

// nextEase applies EF' = EF + (0.1 - (3-q)*(0.08 + (3-q)*0.02)), clamped to
// the policy bounds and rounded to two decimals.
func nextEase(p Policy, ease float64, q Quality) float64 {
	miss := float64(MaxQuality - q)
	ease += 0.1 - miss*(0.08+miss*0.02)
	ease = math.Min(math.Max(ease, p.MinEase), p.MaxEase)
	return math.Round(ease*100) / 100
}

// growInterval returns round(days * ease), saturating at limit. The product
// is compared as a float so that it never overflows int.
func growInterval(days int, ease float64, limit int) int {
	grown := math.Round(float64(days) * ease)
	if grown >= float64(limit) {
		return limit
	}
	return int(grown)
}

// dueAt returns now when days is zero, otherwise the start of the day that is
// days calendar days after now.
func dueAt(p Policy, now time.Time, days int) time.Time {
	if days == 0 {
		return now
	}
	loc := p.Location
	if loc == nil {
		loc = now.Location()
	}
	d := now.In(loc).AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
