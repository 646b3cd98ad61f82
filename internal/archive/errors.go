package archive

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is matched by every UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ErrNoMatch is returned by ExtractFile when no entry matches the requested suffix.
var ErrNoMatch = errors.New("no matching archive entry")

// UnsupportedFormatError is returned for an input whose extension is neither a known
// archive type nor a standalone binary.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported archive format %q: %s", e.Ext, e.Path)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ReadError wraps a failure to read the input archive.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("unable to read archive %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a failure to write an extracted entry.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("unable to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
