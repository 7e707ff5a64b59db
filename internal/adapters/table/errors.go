package table

import (
	"errors"
)

// Sentinel kinds for table codec errors.
var (
	ErrBadHeader = errors.New("unexpected table header")
	ErrBadName   = errors.New("malformed forecast filename")
)
