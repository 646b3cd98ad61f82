// Package hostfn implements the capabilities the host lends to plugins.
//
// Plugins have no ambient filesystem, network or process access. Everything they
// observe beyond their call input goes through these functions.
package hostfn

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/download"
)

// Defaults for command execution.
const (
	DefaultExecTimeout = 10 * time.Minute
	DefaultOutputLimit = 1 << 20
)

// ErrNoFetcher is returned by FetchURL when no fetch cache was configured.
var ErrNoFetcher = errors.New("url fetching is not available")

// Functions is the host capability set handed to every plugin instance.
type Functions struct {
	fetcher     *download.Cache
	execTimeout time.Duration
	outputLimit int
	env         []string
}

// Option configures Functions.
type Option func(*Functions)

// WithFetcher enables fetch_url_with_cache.
func WithFetcher(c *download.Cache) Option {
	return func(f *Functions) { f.fetcher = c }
}

// WithExecTimeout bounds every exec_command call.
func WithExecTimeout(d time.Duration) Option {
	return func(f *Functions) {
		if d > 0 {
			f.execTimeout = d
		}
	}
}

// WithOutputLimit caps the captured stdout and stderr of exec_command, in bytes.
func WithOutputLimit(n int) Option {
	return func(f *Functions) {
		if n > 0 {
			f.outputLimit = n
		}
	}
}

// WithBaseEnv replaces the environment inherited by spawned commands.
func WithBaseEnv(env []string) Option {
	return func(f *Functions) { f.env = env }
}

func New(opts ...Option) *Functions {
	f := &Functions{
		execTimeout: DefaultExecTimeout,
		outputLimit: DefaultOutputLimit,
		env:         minimalEnv(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Trace forwards a plugin message to the context logger.
func (f *Functions) Trace(ctx context.Context, toolID, message string) {
	slogcontext.FromCtx(ctx).DebugContext(ctx, message, "tool", toolID, "source", "plugin")
}

// FetchURL returns the JSON document at url through the fetch cache.
func (f *Functions) FetchURL(ctx context.Context, url string) ([]byte, error) {
	if f.fetcher == nil {
		return nil, ErrNoFetcher
	}
	data, err := f.fetcher.FetchJSON(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return data, nil
}
