package sm2

import "errors"

var (
	// ErrInvalidQuality is returned when a review quality is not an integer in [MinQuality, MaxQuality].
	ErrInvalidQuality = errors.New("sm2: invalid quality")
	// ErrInvalidPolicy is returned by Policy.Validate and NewScheduler.
	ErrInvalidPolicy = errors.New("sm2: invalid policy")
)
