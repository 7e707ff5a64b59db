package norm

import (
	"errors"
)

// Sentinel kinds for reference-join errors.
var (
	ErrMissingCapacity = errors.New("missing capacity")
)
