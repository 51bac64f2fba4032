package fetcher

import "errors"

var (
	// ErrNotYetAvailable means the source has not published the requested
	// hour yet. Callers defer to the next tick without penalty.
	ErrNotYetAvailable = errors.New("snapshot not yet available")

	// ErrEmptyPayload means the source answered with no topics. Treated as a
	// transient failure.
	ErrEmptyPayload = errors.New("snapshot payload is empty")
)
