// Package plugin is the single call path from the install pipeline into tool
// implementations.
//
// A tool is backed by a Plugin: a sandboxed module, a declarative schema, or native Go
// code registered through NewNative. Callers never distinguish between them. They use
// Call with the typed contract from contracts/v1, which serializes the input, invokes
// the capability by name, validates the raw output against the schema reflected from
// the output type and decodes it.
//
// Capabilities a plugin does not export are not errors. Call returns the zero output,
// with SetDefaults applied when the output type defines it.
package plugin

import (
	"context"
	"errors"
	"fmt"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// ErrMalformedOutput marks plugin output that does not match the capability schema.
var ErrMalformedOutput = errors.New("malformed plugin output")

// ErrUnknownCapability is returned by a plugin asked to run a capability it does not export.
var ErrUnknownCapability = errors.New("unknown capability")

// Plugin is a loaded capability provider for one tool.
type Plugin interface {
	// ID is the tool id the plugin was loaded for.
	ID() string
	// Implements reports whether the capability is exported.
	Implements(capability v1.Capability) bool
	// Call runs the capability with a JSON input and returns its JSON output.
	Call(ctx context.Context, capability v1.Capability, input []byte) ([]byte, error)
	Close(ctx context.Context) error
}

// PluginError is returned when a capability could not be executed or answered with
// output that violates its schema.
type PluginError struct {
	Tool       string
	Capability v1.Capability
	Err        error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed in %s: %v", e.Tool, e.Capability, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
