package weighting

import (
	"errors"
)

// Sentinel kinds for ramp configuration errors. These allow errors.Is from
// callers.
var (
	ErrInvalidRamp = errors.New("invalid blend ramp")
)
