package pvlive

import "errors"

// Sentinel errors for PVLive operations.
var (
	// ErrRequestFailed indicates the API answered with a non-200 status.
	ErrRequestFailed = errors.New("pvlive request failed")

	// ErrBadPayload indicates a response body that does not carry the
	// expected meta/data columns.
	ErrBadPayload = errors.New("pvlive payload malformed")

	// ErrBadRange indicates a fetch window whose start is not before its
	// end.
	ErrBadRange = errors.New("invalid fetch range")
)
