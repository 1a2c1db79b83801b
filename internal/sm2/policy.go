package sm2

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default policy values.
const (
	DefaultInitialEase        = 2.5
	DefaultMinEase            = 1.3
	DefaultMaxEase            = 2.5
	DefaultFirstIntervalDays  = 1
	DefaultSecondIntervalDays = 6
)

// IntervalLimitDays bounds every interval, whatever the policy. It keeps due
// dates within four-digit years however long a card keeps being answered Easy.
const IntervalLimitDays = 1_000_000

var validate = validator.New(validator.WithRequiredStructEnabled())

// Policy holds the numeric policy of the scheduler.
type Policy struct {
	InitialEase float64 `validate:"gtefield=MinEase,ltefield=MaxEase"`
	MinEase     float64 `validate:"gt=0"`
	MaxEase     float64 `validate:"gtefield=MinEase"`

	// Warm-up intervals for the first and second consecutive success.
	FirstIntervalDays  int `validate:"gte=1,lte=1000000"`
	SecondIntervalDays int `validate:"gtefield=FirstIntervalDays,lte=1000000"`

	// MaxIntervalDays caps the interval. Zero means only IntervalLimitDays applies.
	MaxIntervalDays int `validate:"omitempty,gtefield=SecondIntervalDays,lte=1000000"`

	// Location is the zone in which due dates are truncated to midnight.
	// Nil means the location of the "now" passed in.
	Location *time.Location `validate:"-"`
}

// DefaultPolicy returns the product policy: ease in [1.3, 2.5] starting at
// 2.5, and a fixed 1/6 day warm-up.
func DefaultPolicy() Policy {
	return Policy{
		InitialEase:        DefaultInitialEase,
		MinEase:            DefaultMinEase,
		MaxEase:            DefaultMaxEase,
		FirstIntervalDays:  DefaultFirstIntervalDays,
		SecondIntervalDays: DefaultSecondIntervalDays,
	}
}

// intervalLimit is the largest interval the policy allows.
func (p Policy) intervalLimit() int {
	if p.MaxIntervalDays > 0 {
		return p.MaxIntervalDays
	}
	return IntervalLimitDays
}

// Validate checks that the bounds are ordered and the warm-up is positive.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}
