// Package toolsconfig reads and writes the .prototools file of a project.
//
// The file is TOML. Top-level string keys pin a tool id to a version specifier, the
// optional [plugins] table maps tool ids to plugin locators:
//
//	node = "18"
//	npm = "latest"
//
//	[plugins]
//	deno = "https://example.com/deno.toml"
package toolsconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the project file.
const FileName = ".prototools"

const pluginsKey = "plugins"

// ErrInvalid is matched by every ParseError.
var ErrInvalid = errors.New("invalid tools config")

// ParseError names the file that could not be read.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Path, e.Err)
}

func (e *ParseError) Is(target error) bool { return target == ErrInvalid }

func (e *ParseError) Unwrap() error { return e.Err }

// ToolsConfig is the content of one .prototools file.
type ToolsConfig struct {
	Path    string
	Tools   map[string]string
	Plugins map[string]string
}

// Load reads the .prototools file in dir. A missing file yields an empty config bound to it.
func Load(dir string) (*ToolsConfig, error) {
	path := filepath.Join(dir, FileName)
	cfg := &ToolsConfig{Path: path, Tools: map[string]string{}, Plugins: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	for key, value := range raw {
		switch v := value.(type) {
		case string:
			cfg.Tools[key] = v
		case map[string]any:
			if key != pluginsKey {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("unknown table [%s]", key)}
			}
			for id, locator := range v {
				s, ok := locator.(string)
				if !ok {
					return nil, &ParseError{Path: path, Err: fmt.Errorf("plugin %s must be a string, got %T", id, locator)}
				}
				cfg.Plugins[id] = s
			}
		default:
			return nil, &ParseError{Path: path, Err: fmt.Errorf("tool %s must be a version string, got %T", key, value)}
		}
	}
	return cfg, nil
}

// Version returns the specifier pinned for id.
func (c *ToolsConfig) Version(id string) (string, bool) {
	v, ok := c.Tools[id]
	return v, ok && v != ""
}

// Set pins id to spec.
func (c *ToolsConfig) Set(id, spec string) {
	c.Tools[id] = spec
}

// Save writes the config back to its path.
func (c *ToolsConfig) Save() error {
	doc := make(map[string]any, len(c.Tools)+1)
	for id, spec := range c.Tools {
		doc[id] = spec
	}
	if len(c.Plugins) > 0 {
		doc[pluginsKey] = c.Plugins
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", c.Path, err)
	}

	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Path, err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		return errors.Join(fmt.Errorf("writing %s: %w", c.Path, err), os.Remove(tmp))
	}
	return nil
}
