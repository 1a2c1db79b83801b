package sm2

import "time"

// Scheduler applies a fixed Policy using an injectable clock.
// It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	policy Policy
	now    func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler validates p and returns a Scheduler using it.
func NewScheduler(p Policy, opts ...Option) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{policy: p, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the policy the scheduler was built with.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Initialize returns the default schedule for a new flashcard.
func (s *Scheduler) Initialize() State {
	return Init(s.policy, s.now())
}

// Advance returns the schedule that follows prev after a review of quality q.
func (s *Scheduler) Advance(prev State, q Quality) (State, error) {
	return Next(s.policy, prev, q, s.now())
}

// Preview returns the outcome of every quality on the scale, all computed
// against the same instant.
func (s *Scheduler) Preview(prev State) map[Quality]State {
	now := s.now()
	out := make(map[Quality]State, int(MaxQuality-MinQuality)+1)
	for q := MinQuality; q <= MaxQuality; q++ {
		next, _ := Next(s.policy, prev, q, now)
		out[q] = next
	}
	return out
}
