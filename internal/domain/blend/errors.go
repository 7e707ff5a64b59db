package blend

import (
	"errors"
)

// Sentinel kinds for blend configuration errors.
var (
	ErrInvalidPolicy = errors.New("invalid single-source policy")
	ErrInvalidWindow = errors.New("invalid issue-time window")
)
