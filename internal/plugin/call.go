package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	slogcontext "github.com/veqryn/slog-context"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

type defaulter interface {
	SetDefaults()
}

// Call invokes capability on p with input and decodes the result into Out.
func Call[In, Out any](ctx context.Context, p Plugin, capability v1.Capability, input In) (Out, error) {
	var out Out
	if d, ok := any(&out).(defaulter); ok {
		d.SetDefaults()
	}
	if !p.Implements(capability) {
		return out, nil
	}

	logger := slogcontext.FromCtx(ctx).With("tool", p.ID(), "capability", capability)

	data, err := json.Marshal(input)
	if err != nil {
		return out, &PluginError{Tool: p.ID(), Capability: capability, Err: fmt.Errorf("failed to marshal input: %w", err)}
	}

	logger.DebugContext(ctx, "calling plugin")
	raw, err := p.Call(ctx, capability, data)
	if err != nil {
		return out, &PluginError{Tool: p.ID(), Capability: capability, Err: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	if err := validateOutput[Out](raw); err != nil {
		return out, &PluginError{Tool: p.ID(), Capability: capability, Err: fmt.Errorf("%w: %w", ErrMalformedOutput, err)}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &PluginError{Tool: p.ID(), Capability: capability, Err: fmt.Errorf("%w: %w", ErrMalformedOutput, err)}
	}
	return out, nil
}
