package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// Handler serves one capability with raw JSON.
type Handler func(ctx context.Context, input []byte) ([]byte, error)

// Handle adapts a typed function into a Handler.
func Handle[In, Out any](fn func(ctx context.Context, input In) (Out, error)) Handler {
	return func(ctx context.Context, raw []byte) ([]byte, error) {
		var input In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal input: %w", err)
			}
		}
		out, err := fn(ctx, input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

// Native is a Plugin implemented in Go.
type Native struct {
	id       string
	handlers map[v1.Capability]Handler
	closer   func(ctx context.Context) error
}

var _ Plugin = (*Native)(nil)

// NativeOption configures a Native plugin.
type NativeOption func(*Native)

// WithCloser runs fn when the plugin is closed.
func WithCloser(fn func(ctx context.Context) error) NativeOption {
	return func(n *Native) { n.closer = fn }
}

// NewNative creates a plugin exporting exactly the given handlers.
func NewNative(id string, handlers map[v1.Capability]Handler, opts ...NativeOption) *Native {
	n := &Native{id: id, handlers: handlers}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Native) ID() string { return n.id }

func (n *Native) Implements(capability v1.Capability) bool {
	_, ok := n.handlers[capability]
	return ok
}

func (n *Native) Call(ctx context.Context, capability v1.Capability, input []byte) ([]byte, error) {
	handler, ok := n.handlers[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
	return handler(ctx, input)
}

func (n *Native) Close(ctx context.Context) error {
	if n.closer == nil {
		return nil
	}
	return n.closer(ctx)
}
