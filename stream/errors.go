package stream

import "errors"

var (
	// ErrBuildPending means the transcode has not produced streamable content
	// yet. A retry-able status, not a failure.
	ErrBuildPending = errors.New("transcode not ready yet")

	// ErrBuildFailed means a previous build for this key crashed and will not
	// be retried until explicitly invalidated.
	ErrBuildFailed = errors.New("transcode build failed")

	// ErrBadSegmentName rejects unsafe segment identifiers before any
	// filesystem access.
	ErrBadSegmentName = errors.New("bad segment name")

	// ErrSegmentNotFound means the named segment does not exist in the cache.
	ErrSegmentNotFound = errors.New("segment not found")
)
