package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// RootEnv overrides the default root directory.
const RootEnv = "PROTO_ROOT"

// DefaultRoot is used when neither a flag nor RootEnv is set.
const DefaultRoot = "~/.proto"

// Paths is the directory layout under a proto root.
type Paths struct {
	Root    string
	Bin     string
	Tools   string
	Temp    string
	Plugins string
	Cache   string
}

// ResolveRoot picks the root directory from flag, then RootEnv, then DefaultRoot.
func ResolveRoot(flag string) (string, error) {
	root := strings.TrimSpace(flag)
	if root == "" {
		root = strings.TrimSpace(os.Getenv(RootEnv))
	}
	if root == "" {
		root = DefaultRoot
	}

	expanded, err := homedir.Expand(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	return abs, nil
}

// NewPaths derives the layout of root.
func NewPaths(root string) Paths {
	return Paths{
		Root:    root,
		Bin:     filepath.Join(root, "bin"),
		Tools:   filepath.Join(root, "tools"),
		Temp:    filepath.Join(root, "temp"),
		Plugins: filepath.Join(root, "plugins"),
		Cache:   filepath.Join(root, "cache"),
	}
}

// ConfigFile is the location of config.yaml.
func (p Paths) ConfigFile() string {
	return filepath.Join(p.Root, FileName)
}

// ToolDir holds every version and the manifest of a tool.
func (p Paths) ToolDir(id string) string {
	return filepath.Join(p.Tools, id)
}

// ManifestFile is the per-tool manifest.
func (p Paths) ManifestFile(id string) string {
	return filepath.Join(p.ToolDir(id), "manifest.json")
}

// InstallDir is <tools>/<id>/<version>.
func (p Paths) InstallDir(id, version string) string {
	return filepath.Join(p.ToolDir(id), version)
}

// LocalShimDir holds the per-version shims of a tool.
func (p Paths) LocalShimDir(id, version string) string {
	return filepath.Join(p.InstallDir(id, version), "shims")
}

// TempDir holds downloads for a tool version.
func (p Paths) TempDir(id, version string) string {
	return filepath.Join(p.Temp, id, version)
}

// RequestCache holds cached fetch responses.
func (p Paths) RequestCache() string {
	return filepath.Join(p.Cache, "requests")
}

// CompiledCache holds compiled plugin modules.
func (p Paths) CompiledCache() string {
	return filepath.Join(p.Cache, "wasm")
}
