// Package setup builds the objects shared by all commands of a single invocation.
package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/config"
	"github.com/mmiszy/proto/internal/download"
	"github.com/mmiszy/proto/internal/install"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/plugin/loader"
	"github.com/mmiszy/proto/internal/plugin/wasm"
	"github.com/mmiszy/proto/internal/resolve"
	"github.com/mmiszy/proto/internal/tool"
	"github.com/mmiszy/proto/internal/tools/depman"
	"github.com/mmiszy/proto/internal/tools/node"
	"github.com/mmiszy/proto/internal/tools/rust"
	"github.com/mmiszy/proto/internal/toolsconfig"
)

// Options select the proto root and the project directory of a Session.
type Options struct {
	// Root overrides config.RootEnv and config.DefaultRoot.
	Root string
	// ConfigFile overrides the config.yaml inside the root.
	ConfigFile string
	// WorkDir is where version detection and .prototools lookups start.
	WorkDir string
}

// Session owns the plugins, caches and install pipeline of one command run.
type Session struct {
	Paths    config.Paths
	Config   *config.Config
	Project  *toolsconfig.ToolsConfig
	WorkDir  string
	Fetcher  *download.Cache
	Plugins  *loader.Registry
	Pipeline *install.Pipeline

	compiled wazero.CompilationCache

	mu        sync.Mutex
	resolvers map[string]*resolve.Resolver
}

func New(ctx context.Context, opts Options) (*Session, error) {
	root, err := config.ResolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	paths := config.NewPaths(root)

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = paths.ConfigFile()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("could not determine working directory: %w", err)
		}
	}
	project, err := toolsconfig.Load(workDir)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient()
	fetcher := download.NewCache(client, paths.RequestCache(), cfg.CacheEntries(),
		download.WithTTL(cfg.Cache.TTL.Value()))
	host := hostfn.New(
		hostfn.WithFetcher(fetcher),
		hostfn.WithExecTimeout(cfg.Sandbox.ExecTimeout.Value()),
	)

	s := &Session{
		Paths:     paths,
		Config:    cfg,
		Project:   project,
		WorkDir:   workDir,
		Fetcher:   fetcher,
		resolvers: map[string]*resolve.Resolver{},
	}

	wasmOpts := wasm.Options{
		MemoryPages: cfg.MemoryPages(),
		Timeout:     cfg.Sandbox.Timeout.Value(),
		Env:         tool.HostEnvironment(),
	}
	if compiled, err := wazero.NewCompilationCacheWithDir(paths.CompiledCache()); err != nil {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "compilation cache disabled", "dir", paths.CompiledCache(), "error", err)
	} else {
		s.compiled = compiled
		wasmOpts.Cache = compiled
	}

	s.Plugins = loader.New(loader.Options{
		Dir:    paths.Plugins,
		Client: client,
		Host:   host,
		Wasm:   wasmOpts,
	})
	s.Plugins.RegisterBuiltin(rust.ID, rust.Builtin)
	s.Plugins.RegisterBuiltin(node.ID, node.Builtin)
	for id := range depman.Managers {
		s.Plugins.RegisterBuiltin(id, depman.Builtin)
	}
	// project locators win over the user configuration
	for id, locator := range cfg.Plugins {
		s.Plugins.SetLocator(id, locator)
	}
	for id, locator := range project.Plugins {
		s.Plugins.SetLocator(id, locator)
	}

	s.Pipeline = install.New(client, paths.Bin, install.WithConcurrency(cfg.Concurrency()))
	return s, nil
}

// Tool loads the plugin of id and registers it as a tool.
func (s *Session) Tool(ctx context.Context, id string) (*tool.Tool, error) {
	r, err := s.Resolver(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Tool(), nil
}

// Resolver returns the resolver of tool id. Resolvers and their caches live as long as
// the session.
func (s *Session) Resolver(ctx context.Context, id string) (*resolve.Resolver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.resolvers[id]; ok {
		return r, nil
	}
	p, err := s.Plugins.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := tool.New(ctx, id, p, s.Paths)
	if err != nil {
		return nil, err
	}
	r := resolve.New(t)
	s.resolvers[id] = r
	return r, nil
}

// InstalledTools lists the ids that have a directory under the tools root.
func (s *Session) InstalledTools() ([]string, error) {
	entries, err := os.ReadDir(s.Paths.Tools)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the loaded plugins and the compilation cache. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	err := s.Plugins.Close(ctx)
	if s.compiled != nil {
		err = errors.Join(err, s.compiled.Close(ctx))
		s.compiled = nil
	}
	return err
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
