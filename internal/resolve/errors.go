package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAlias is matched by every UnknownAliasError.
	ErrUnknownAlias = errors.New("unknown version alias")
	// ErrResolveFailed is matched by every ResolveFailedError.
	ErrResolveFailed = errors.New("failed to resolve version")
	// ErrInvalidAlias is returned when setting an alias whose name is itself a version.
	ErrInvalidAlias = errors.New("invalid alias name")
)

// UnknownAliasError is returned for a specifier that is neither a version nor a known alias.
type UnknownAliasError struct {
	Tool string
	Spec string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("%s: unknown version alias %q", e.Tool, e.Spec)
}

func (e *UnknownAliasError) Is(target error) bool { return target == ErrUnknownAlias }

// ResolveFailedError is returned when a specifier does not match any known release.
type ResolveFailedError struct {
	Tool string
	Spec string
	Err  error
}

func (e *ResolveFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: failed to resolve version %q: %v", e.Tool, e.Spec, e.Err)
	}
	return fmt.Sprintf("%s: failed to resolve version %q", e.Tool, e.Spec)
}

func (e *ResolveFailedError) Is(target error) bool { return target == ErrResolveFailed }

func (e *ResolveFailedError) Unwrap() error { return e.Err }
