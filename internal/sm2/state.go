package sm2

import "time"

// State is the schedule record of one flashcard for one learner.
type State struct {
	EaseFactor      float64   `json:"ease_factor"`
	IntervalDays    int       `json:"interval_days"`
	RepetitionCount int       `json:"repetition_count"`
	NextReviewAt    time.Time `json:"next_review_at"`
}

// IsNew reports whether the card behaves like a freshly created one:
// no successful repetitions and no pending interval.
func (s State) IsNew() bool {
	return s.RepetitionCount == 0 && s.IntervalDays == 0
}

// IsDue reports whether the card should be shown at now.
func (s State) IsDue(now time.Time) bool {
	return !now.Before(s.NextReviewAt)
}
