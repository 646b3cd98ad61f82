// Package shim writes the delegating scripts that route a command to an installed tool version.
//
// Global shims live in the shared bin directory, local shims under the shims directory of a
// version. The set of shims is the same on every host; only the script dialect differs.
package shim

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// ErrInvalidName is returned for shim names that are not plain file names.
var ErrInvalidName = errors.New("invalid shim name")

// ErrInvalidBinPath is returned for shim targets outside the install directory.
var ErrInvalidBinPath = errors.New("invalid shim bin path")

// Kind distinguishes shims in the shared bin directory from per-version ones.
type Kind int

const (
	Global Kind = iota
	Local
)

func (k Kind) String() string {
	if k == Local {
		return "local"
	}
	return "global"
}

// Shim is one delegating script.
type Shim struct {
	Kind    Kind
	Name    string
	Tool    string
	Version string
	// Bin is the absolute path of the executable the shim runs.
	Bin        string
	ParentBin  string
	BeforeArgs []string
}

// Command is the invocation the shim performs before appending the caller's arguments.
func (s Shim) Command() []string {
	cmd := make([]string, 0, len(s.BeforeArgs)+2)
	if s.ParentBin != "" {
		cmd = append(cmd, s.ParentBin)
	}
	cmd = append(cmd, s.Bin)
	return append(cmd, s.BeforeArgs...)
}

// Plan turns the create_shims output of a tool into concrete shims. bin is the located
// executable relative to installDir and is the target of every shim without its own bin path.
// Unless out.NoPrimaryGlobal is set, a global shim named after the tool points at bin.
func Plan(id, version, installDir, bin string, out v1.CreateShimsOutput) ([]Shim, error) {
	var shims []Shim

	add := func(kind Kind, name string, cfg v1.ShimConfig) error {
		if err := validateName(name); err != nil {
			return err
		}
		target := cfg.BinPath
		if target == "" {
			target = bin
		}
		if !filepath.IsLocal(filepath.FromSlash(target)) {
			return fmt.Errorf("%w: %s points to %q", ErrInvalidBinPath, name, target)
		}
		shims = append(shims, Shim{
			Kind:       kind,
			Name:       name,
			Tool:       id,
			Version:    version,
			Bin:        filepath.Join(installDir, filepath.FromSlash(target)),
			ParentBin:  cfg.ParentBin,
			BeforeArgs: cfg.BeforeArgs,
		})
		return nil
	}

	if _, declared := out.GlobalShims[id]; !out.NoPrimaryGlobal && !declared {
		if err := add(Global, id, v1.ShimConfig{}); err != nil {
			return nil, err
		}
	}
	for name, cfg := range out.GlobalShims {
		if err := add(Global, name, cfg); err != nil {
			return nil, err
		}
	}
	for name, cfg := range out.LocalShims {
		if err := add(Local, name, cfg); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(shims, func(a, b Shim) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return shims, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\:`) || path.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Writer renders shims for one host platform.
type Writer struct {
	fs afero.Fs
	os v1.HostOS
}

func NewWriter(fs afero.Fs, hostOS v1.HostOS) *Writer {
	return &Writer{fs: fs, os: hostOS}
}

// FileName is the name of the shim file on the writer's platform.
func (w *Writer) FileName(s Shim) string {
	if w.os != v1.OSWindows {
		return s.Name
	}
	if s.Kind == Local {
		return s.Name + ".ps1"
	}
	return s.Name + ".cmd"
}

// Write renders s into dir, replacing an existing shim, and returns the written path.
func (w *Writer) Write(dir string, s Shim) (string, error) {
	if err := validateName(s.Name); err != nil {
		return "", err
	}
	content, err := w.Render(s)
	if err != nil {
		return "", err
	}

	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create shim directory %s: %w", dir, err)
	}

	target := filepath.Join(dir, w.FileName(s))
	tmp := target + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, content, 0o755); err != nil {
		return "", fmt.Errorf("failed to write shim %s: %w", target, err)
	}
	if err := w.fs.Chmod(tmp, 0o755); err != nil {
		return "", errors.Join(fmt.Errorf("failed to write shim %s: %w", target, err), w.fs.Remove(tmp))
	}
	if err := w.fs.Rename(tmp, target); err != nil {
		return "", errors.Join(fmt.Errorf("failed to write shim %s: %w", target, err), w.fs.Remove(tmp))
	}
	return target, nil
}

// Remove deletes the shim from dir. A missing shim is not an error.
func (w *Writer) Remove(dir string, s Shim) error {
	target := filepath.Join(dir, w.FileName(s))
	if err := w.fs.Remove(target); err != nil {
		if exists, _ := afero.Exists(w.fs, target); exists {
			return fmt.Errorf("failed to remove shim %s: %w", target, err)
		}
	}
	return nil
}

// Render returns the script content of s.
func (w *Writer) Render(s Shim) ([]byte, error) {
	tmpl := unixTemplate
	if w.os == v1.OSWindows {
		tmpl = cmdTemplate
		if s.Kind == Local {
			tmpl = ps1Template
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("failed to render shim %s: %w", s.Name, err)
	}
	return buf.Bytes(), nil
}
