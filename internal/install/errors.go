package install

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChecksum is matched by every InvalidChecksumError.
	ErrInvalidChecksum = errors.New("invalid checksum")
	// ErrMissingDownload is matched by every MissingDownloadError.
	ErrMissingDownload = errors.New("missing download")
	// ErrUnsafePath is matched by every UnsafePathError.
	ErrUnsafePath = errors.New("unsafe path")
)

// InvalidChecksumError is returned when a download does not match its declared checksum.
// It is never retried.
type InvalidChecksumError struct {
	Tool     string
	Path     string
	Checksum string
}

func (e *InvalidChecksumError) Error() string {
	return fmt.Sprintf("%s: checksum of %s does not match %s", e.Tool, e.Path, e.Checksum)
}

func (e *InvalidChecksumError) Is(target error) bool { return target == ErrInvalidChecksum }

// MissingDownloadError is returned when installing without a downloaded artifact.
type MissingDownloadError struct {
	Tool string
	Path string
}

func (e *MissingDownloadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: no download available to install", e.Tool)
	}
	return fmt.Sprintf("%s: download %s is missing, download the tool before installing", e.Tool, e.Path)
}

func (e *MissingDownloadError) Is(target error) bool { return target == ErrMissingDownload }

// StepError names the tool and pipeline step a failure happened in.
type StepError struct {
	Tool string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Tool, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// UnsafePathError is returned when a tool names a file outside the directory it is placed in.
type UnsafePathError struct {
	Tool  string
	Field string
	Path  string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("%s: %s %q must stay within its directory", e.Tool, e.Field, e.Path)
}

func (e *UnsafePathError) Is(target error) bool { return target == ErrUnsafePath }
