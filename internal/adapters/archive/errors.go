package archive

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrSchemaMismatch indicates a run file that does not share the
	// archive's schema: wrong columns, mixed issue times, or a different
	// location or quantile universe than the rest of the directory.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrLocationNotFound indicates the requested GSP id has no rows in
	// the consolidated archive.
	ErrLocationNotFound = errors.New("location not found")

	// ErrQuantileNotFound indicates a requested quantile has no rows at
	// the requested location.
	ErrQuantileNotFound = errors.New("quantile not found")
)
