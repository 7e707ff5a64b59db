package dedupe

import (
	"errors"
)

// Sentinel kinds for duplicate detection. Packages that enforce the
// one-row-per-key invariant wrap this with the offending key.
var (
	ErrDuplicateRow = errors.New("duplicate forecast row")
)
