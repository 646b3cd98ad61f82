// Package wasm runs tool plugins as sandboxed WebAssembly modules through extism.
//
// Modules get no preopened directories, no allowed hosts and no environment. Their only
// way out is the host function set from hostfn, registered in the extism user namespace:
//
//	trace(message)                      log through the host logger
//	exec_command(ExecCommandInput)      spawn a process, returns ExecCommandOutput
//	fetch_url_with_cache({url})         JSON document from the host fetch cache
//
// The tool id and the host environment are exposed as plugin config values.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
)

// Default sandbox limits.
const (
	DefaultMemoryPages = 1024 // 64 MiB
	DefaultTimeout     = 5 * time.Minute
)

// Options bound the resources of a plugin instance.
type Options struct {
	// MemoryPages limits linear memory in 64 KiB pages.
	MemoryPages uint32
	// Timeout limits a single capability call.
	Timeout time.Duration
	// Cache shares compiled modules between instances and processes.
	Cache wazero.CompilationCache
	Env   v1.Environment
}

// Plugin is a loaded WebAssembly tool plugin. Calls are serialized because an extism
// instance is not safe for concurrent use.
type Plugin struct {
	id     string
	source string

	mu     sync.Mutex
	plugin *extism.Plugin
}

var _ plugin.Plugin = (*Plugin)(nil)

// Load reads the module at path and instantiates it.
func Load(ctx context.Context, id, path string, host *hostfn.Functions, opts Options) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	p, err := New(ctx, id, data, host, opts)
	if err != nil {
		return nil, err
	}
	p.source = path
	return p, nil
}

// New instantiates a module from its bytes.
func New(ctx context.Context, id string, data []byte, host *hostfn.Functions, opts Options) (*Plugin, error) {
	if opts.MemoryPages == 0 {
		opts.MemoryPages = DefaultMemoryPages
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	env, err := json.Marshal(opts.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal environment: %w", err)
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{
				Data: data,
			},
		},
		Memory: &extism.ManifestMemory{
			MaxPages: opts.MemoryPages,
		},
		Config: map[string]string{
			v1.ConfigToolID:      id,
			v1.ConfigEnvironment: string(env),
		},
		Timeout: uint64(opts.Timeout.Milliseconds()),
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(opts.MemoryPages)
	if opts.Cache != nil {
		runtimeConfig = runtimeConfig.WithCompilationCache(opts.Cache)
	}

	config := extism.PluginConfig{
		EnableWasi:    true,
		RuntimeConfig: runtimeConfig,
	}

	p, err := extism.NewPlugin(ctx, manifest, config, HostFunctions(id, host))
	if err != nil {
		return nil, &plugin.PluginError{Tool: id, Capability: v1.RegisterTool, Err: fmt.Errorf("failed to create extism plugin: %w", err)}
	}

	logger := slogcontext.FromCtx(ctx).With("tool", id)
	p.SetLogger(func(level extism.LogLevel, message string) {
		logger.Log(context.Background(), slogLevel(level), message, "source", "plugin")
	})

	return &Plugin{id: id, plugin: p}, nil
}

func (p *Plugin) ID() string { return p.id }

// Source is the path the module was loaded from, empty for in-memory modules.
func (p *Plugin) Source() string { return p.source }

func (p *Plugin) Implements(capability v1.Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plugin.FunctionExists(string(capability))
}

func (p *Plugin) Call(ctx context.Context, capability v1.Capability, input []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exit, output, err := p.plugin.CallWithContext(ctx, string(capability), input)
	if err != nil {
		return nil, fmt.Errorf("failed to call wasm function %s: %w", capability, err)
	}
	if exit != 0 {
		return nil, fmt.Errorf("wasm function %s exited with code %d", capability, exit)
	}
	return output, nil
}

func (p *Plugin) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plugin.Close(ctx)
	return nil
}

func slogLevel(level extism.LogLevel) slog.Level {
	switch level {
	case extism.LogLevelTrace, extism.LogLevelDebug:
		return slog.LevelDebug
	case extism.LogLevelWarn:
		return slog.LevelWarn
	case extism.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
