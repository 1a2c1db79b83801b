package sm2

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quality is the learner's recall judgment for a single review.
//
// The product only emits Failed and Easy. Values 1 and 2 are accepted by the
// ease formula but have no product meaning attached to them.
type Quality int

const (
	Failed Quality = 0 // "I don't remember"
	Easy   Quality = 3 // "Easy"

	MinQuality = Failed
	MaxQuality = Easy
)

// Validate reports ErrInvalidQuality when q is outside [MinQuality, MaxQuality].
func (q Quality) Validate() error {
	if q < MinQuality || q > MaxQuality {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidQuality, int(q), MinQuality, MaxQuality)
	}
	return nil
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= Easy
}

func (q Quality) String() string {
	switch q {
	case Failed:
		return "Failed"
	case Easy:
		return "Easy"
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// ParseQuality converts an externally supplied number, such as a decoded
// JSON value. NaN, infinities, fractional and out-of-range values are rejected.
func ParseQuality(v float64) (Quality, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidQuality, v)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidQuality, v)
	}
	if v < float64(MinQuality) || v > float64(MaxQuality) {
		return 0, fmt.Errorf("%w: %v not in [%d, %d]", ErrInvalidQuality, v, MinQuality, MaxQuality)
	}
	return Quality(v), nil
}

// ParseQualityString is ParseQuality for form and query values.
func ParseQualityString(s string) (Quality, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
	}
	return ParseQuality(v)
}
