package storage

import "errors"

var (
	// ErrPathEscape means a resolved path left the owner's root. The offending
	// absolute path is deliberately not part of the message so storage layout
	// never leaks into responses or logs.
	ErrPathEscape = errors.New("path escapes owner root")

	// ErrNotFound means the target file or directory does not exist.
	ErrNotFound = errors.New("not found")
)
