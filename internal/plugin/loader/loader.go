// Package loader turns plugin locators into ready to call plugins.
//
// Remote plugins are downloaded once into the plugins directory and reused as long as the
// cached file exists. Files with a schema extension become schema plugins, .wasm files
// sandboxed modules, and anything else is treated as an archive wrapping a .wasm module.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/mmiszy/proto/internal/archive"
	"github.com/mmiszy/proto/internal/download"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/plugin/schema"
	"github.com/mmiszy/proto/internal/plugin/wasm"
	"github.com/mmiszy/proto/internal/tool"
)

const wasmExt = ".wasm"

// ErrUnknownTool is returned by Get for ids without a locator or builtin.
var ErrUnknownTool = errors.New("unknown tool")

// LoadError names the tool and locator a plugin failed to load from.
type LoadError struct {
	Tool    string
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: failed to load plugin from %s: %v", e.Tool, e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Builtin constructs a plugin compiled into the binary.
type Builtin func(ctx context.Context, id string, host *hostfn.Functions) (plugin.Plugin, error)

// Options configure a Registry.
type Options struct {
	// Dir caches downloaded plugins.
	Dir    string
	Client *http.Client
	Host   *hostfn.Functions
	Wasm   wasm.Options
}

// Registry loads plugins by tool id and owns them until Close. A plugin is loaded at most
// once per id. Loads of different ids run concurrently.
type Registry struct {
	opts  Options
	group singleflight.Group

	mu       sync.Mutex
	builtins map[string]Builtin
	locators map[string]string
	loaded   map[string]plugin.Plugin
}

func New(opts Options) *Registry {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Host == nil {
		opts.Host = hostfn.New()
	}
	return &Registry{
		opts:     opts,
		builtins: map[string]Builtin{},
		locators: map[string]string{},
		loaded:   map[string]plugin.Plugin{},
	}
}

// RegisterBuiltin makes b available as builtin:<name>. A tool id equal to name uses it
// when no locator is set.
func (r *Registry) RegisterBuiltin(name string, b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = b
}

// SetLocator points tool id at locator. It has no effect on an already loaded plugin.
func (r *Registry) SetLocator(id, locator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locators[id] = locator
}

// Get returns the plugin of tool id, loading it on first use.
func (r *Registry) Get(ctx context.Context, id string) (plugin.Plugin, error) {
	if p, ok := r.cached(id); ok {
		return p, nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		if p, ok := r.cached(id); ok {
			return p, nil
		}
		loc, b, err := r.locate(id)
		if err != nil {
			return nil, err
		}
		p, err := r.load(ctx, id, loc, b)
		if err != nil {
			return nil, &LoadError{Tool: id, Locator: loc.String(), Err: err}
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.loaded[id] = p
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(plugin.Plugin), nil
}

func (r *Registry) cached(id string) (plugin.Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.loaded[id]
	return p, ok
}

// locate picks the locator of id and, for builtin locators, the matching builtin.
func (r *Registry) locate(id string) (Locator, Builtin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.locators[id]
	if !ok {
		if _, builtin := r.builtins[id]; !builtin {
			return Locator{}, nil, fmt.Errorf("%w: %s has no plugin configured", ErrUnknownTool, id)
		}
		raw = "builtin:" + id
	}
	loc, err := ParseLocator(raw)
	if err != nil {
		return Locator{}, nil, &LoadError{Tool: id, Locator: raw, Err: err}
	}
	if loc.Source != SourceBuiltin {
		return loc, nil, nil
	}
	b, ok := r.builtins[loc.Value]
	if !ok {
		return Locator{}, nil, &LoadError{Tool: id, Locator: raw, Err: fmt.Errorf("%w: no builtin named %s", ErrUnknownTool, loc.Value)}
	}
	return loc, b, nil
}

func (r *Registry) load(ctx context.Context, id string, loc Locator, b Builtin) (plugin.Plugin, error) {
	slogcontext.FromCtx(ctx).DebugContext(ctx, "loading plugin", "tool", id, "locator", loc.String())

	if b != nil {
		return b(ctx, id, r.opts.Host)
	}

	path, err := r.Fetch(ctx, id, loc)
	if err != nil {
		return nil, err
	}
	if schema.IsSchemaFile(path) {
		return schema.Load(id, path, r.opts.Host)
	}
	opts := r.opts.Wasm
	if opts.Env == (v1.Environment{}) {
		opts.Env = tool.HostEnvironment()
	}
	return wasm.Load(ctx, id, path, r.opts.Host, opts)
}

// Fetch resolves loc to a local plugin file, downloading and unwrapping it as needed.
// Cached files are reused without verification.
func (r *Registry) Fetch(ctx context.Context, id string, loc Locator) (string, error) {
	switch loc.Source {
	case SourceFile:
		p, err := homedir.Expand(loc.Value)
		if err != nil {
			return "", err
		}
		if p, err = filepath.Abs(p); err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err != nil {
			return "", err
		}
		if isPluginFile(p) {
			return p, nil
		}
		return r.unwrap(ctx, id, p)
	case SourceURL:
		return r.fetchURL(ctx, id, loc.Value)
	default:
		return "", fmt.Errorf("%s plugins have no file", loc.Source)
	}
}

func (r *Registry) fetchURL(ctx context.Context, id, raw string) (_ string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLocator, err)
	}
	name := path.Base(u.Path)
	logger := slogcontext.FromCtx(ctx).With("tool", id, "url", raw)

	if isPluginFile(name) {
		cached := filepath.Join(r.opts.Dir, FileStem(id)+strings.ToLower(path.Ext(name)))
		if exists(cached) {
			logger.DebugContext(ctx, "plugin already downloaded, reusing", "path", cached)
			return cached, nil
		}
		if err := download.ToFile(ctx, r.opts.Client, raw, cached); err != nil {
			return "", err
		}
		return cached, nil
	}

	cached := filepath.Join(r.opts.Dir, FileStem(id)+wasmExt)
	if exists(cached) {
		logger.DebugContext(ctx, "plugin already unpacked, reusing", "path", cached)
		return cached, nil
	}
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(r.opts.Dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(tmp))
	}()

	wrapped := filepath.Join(tmp, name)
	if err := download.ToFile(ctx, r.opts.Client, raw, wrapped); err != nil {
		return "", err
	}
	return r.unwrap(ctx, id, wrapped)
}

// unwrap extracts the .wasm module of tool id from the archive at input into the cache.
func (r *Registry) unwrap(ctx context.Context, id, input string) (string, error) {
	cached := filepath.Join(r.opts.Dir, FileStem(id)+wasmExt)
	preferred := strings.ReplaceAll(strings.ToLower(id), "-", "_") + wasmExt
	entry, err := archive.ExtractFile(input, cached, wasmExt, preferred)
	if err != nil {
		return "", err
	}
	slogcontext.FromCtx(ctx).DebugContext(ctx, "extracted plugin from archive", "tool", id, "archive", input, "entry", entry, "path", cached)
	return cached, nil
}

// Close closes every loaded plugin.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for id, p := range r.loaded {
		if err := p.Close(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", id, err))
		}
		delete(r.loaded, id)
	}
	return errs
}

func isPluginFile(name string) bool {
	return strings.EqualFold(path.Ext(name), wasmExt) || schema.IsSchemaFile(name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
