package site

import "errors"

var (
	// ErrNotDirectory is returned when a directory page is requested for a non-directory path.
	ErrNotDirectory = errors.New("not a directory")
	// ErrOutsideRoot signals a directory that does not lie under the served root.
	ErrOutsideRoot = errors.New("path is outside the served root")
)
