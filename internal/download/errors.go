package download

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError is returned when the server answers 404.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FailedError is any other failed request, either a transport error or a non-2xx status.
type FailedError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s failed with status %d", e.URL, e.StatusCode)
}

func (e *FailedError) Unwrap() error { return e.Err }
