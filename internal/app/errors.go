package pipeline

import (
	"errors"
)

// Sentinel kinds for stage orchestration errors.
var (
	ErrOverlappingRanges = errors.New("issue-time ranges overlap")
)
