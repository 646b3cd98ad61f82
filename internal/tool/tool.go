// Package tool describes managed tools.
//
// A Tool is built once per process from its plugin and is never resolved in place.
// Resolution produces a separate, immutable Resolved value for a concrete version.
package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/mmiszy/proto/internal/config"
	"github.com/mmiszy/proto/internal/manifest"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ErrInvalidID is returned for tool ids that are not usable as directory names.
var ErrInvalidID = errors.New("invalid tool id")

// Tool is an unresolved tool bound to its plugin.
type Tool struct {
	ID            string
	Name          string
	Type          v1.ToolType
	PluginVersion string

	Plugin plugin.Plugin
	Paths  config.Paths
	Env    v1.Environment
}

// New registers the plugin p as tool id.
func New(ctx context.Context, id string, p plugin.Plugin, paths config.Paths) (*Tool, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	meta, err := plugin.Call[v1.RegisterToolInput, v1.RegisterToolOutput](ctx, p, v1.RegisterTool, v1.RegisterToolInput{ID: id})
	if err != nil {
		return nil, err
	}
	name := meta.Name
	if name == "" {
		name = id
	}

	return &Tool{
		ID:            id,
		Name:          name,
		Type:          meta.TypeOf,
		PluginVersion: meta.PluginVersion,
		Plugin:        p,
		Paths:         paths,
		Env:           HostEnvironment(),
	}, nil
}

// Manifest loads the persisted manifest of the tool.
func (t *Tool) Manifest() (*manifest.Manifest, error) {
	return manifest.Load(t.ManifestFile())
}

func (t *Tool) ManifestFile() string {
	return t.Paths.ManifestFile(t.ID)
}

// Resolved pairs t with a concrete version.
func (t *Tool) Resolved(version string) *Resolved {
	return &Resolved{tool: t, version: version}
}

// Resolved is a tool at a concrete version. It is immutable.
type Resolved struct {
	tool    *Tool
	version string
}

func (r *Resolved) Tool() *Tool           { return r.tool }
func (r *Resolved) ID() string            { return r.tool.ID }
func (r *Resolved) Name() string          { return r.tool.Name }
func (r *Resolved) Version() string       { return r.version }
func (r *Resolved) String() string        { return r.tool.ID + "@" + r.version }
func (r *Resolved) Plugin() plugin.Plugin { return r.tool.Plugin }

// Env is the host environment including the resolved version.
func (r *Resolved) Env() v1.Environment {
	env := r.tool.Env
	env.Version = r.version
	return env
}

// InstallDir is where the version lives once installed.
func (r *Resolved) InstallDir() string {
	return r.tool.Paths.InstallDir(r.tool.ID, r.version)
}

// TempDir holds downloads of this version.
func (r *Resolved) TempDir() string {
	return r.tool.Paths.TempDir(r.tool.ID, r.version)
}

// LocalShimDir holds the per-version shims.
func (r *Resolved) LocalShimDir() string {
	return r.tool.Paths.LocalShimDir(r.tool.ID, r.version)
}

// IsInstalled reports whether the install directory exists.
func (r *Resolved) IsInstalled() bool {
	info, err := os.Stat(r.InstallDir())
	return err == nil && info.IsDir()
}
