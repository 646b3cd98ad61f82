// Package manifest persists per-tool aliases and installed versions.
//
// Every mutation reloads the file, applies the change and flushes it before returning.
// Mutations hold an exclusive file lock next to the manifest, so concurrent processes
// serialize instead of overwriting each other.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// ErrLocked is returned when the manifest lock could not be taken before the context ended.
var ErrLocked = errors.New("manifest is locked by another process")

// Manifest is the persisted record of one tool.
type Manifest struct {
	Aliases           map[string]string `json:"aliases"`
	DefaultVersion    string            `json:"default_version,omitempty"`
	InstalledVersions []string          `json:"installed_versions"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{
		Aliases:           map[string]string{},
		InstalledVersions: []string{},
	}
}

// Load reads the manifest at path. A missing file yields an empty manifest
// without creating it.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	m := New()
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	if m.Aliases == nil {
		m.Aliases = map[string]string{}
	}
	if m.InstalledVersions == nil {
		m.InstalledVersions = []string{}
	}
	return m, nil
}

// Update applies fn to the current manifest at path under an exclusive lock and flushes
// the result. Nothing is written when fn fails.
func Update(ctx context.Context, path string, fn func(m *Manifest) error) (_ *Manifest, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer func() {
		err = errors.Join(err, lock.Unlock())
	}()

	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := m.save(path); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("failed to write manifest: %w", err), os.Remove(tmp))
	}
	return nil
}

// Alias looks up name case-insensitively.
func (m *Manifest) Alias(name string) (string, bool) {
	if v, ok := m.Aliases[name]; ok {
		return v, true
	}
	for alias, v := range m.Aliases {
		if strings.EqualFold(alias, name) {
			return v, true
		}
	}
	return "", false
}

// SetAlias points name at version, replacing any alias differing only in case.
func (m *Manifest) SetAlias(name, version string) {
	m.RemoveAlias(name)
	m.Aliases[name] = version
}

// RemoveAlias deletes name and reports whether it existed.
func (m *Manifest) RemoveAlias(name string) bool {
	removed := false
	for alias := range m.Aliases {
		if strings.EqualFold(alias, name) {
			delete(m.Aliases, alias)
			removed = true
		}
	}
	return removed
}

// IsInstalled reports whether version is recorded as installed.
func (m *Manifest) IsInstalled(version string) bool {
	return slices.Contains(m.InstalledVersions, version)
}

// AddInstalled records version, keeping the set sorted newest first.
func (m *Manifest) AddInstalled(version string) {
	if m.IsInstalled(version) {
		return
	}
	m.InstalledVersions = append(m.InstalledVersions, version)
	sortVersions(m.InstalledVersions)
}

// RemoveInstalled forgets version and clears it as default.
func (m *Manifest) RemoveInstalled(version string) {
	m.InstalledVersions = slices.DeleteFunc(m.InstalledVersions, func(v string) bool { return v == version })
	if m.DefaultVersion == version {
		m.DefaultVersion = ""
	}
}

func sortVersions(versions []string) {
	slices.SortFunc(versions, func(a, b string) int {
		va, errA := semver.NewVersion(a)
		vb, errB := semver.NewVersion(b)
		if errA != nil || errB != nil {
			return strings.Compare(b, a)
		}
		return vb.Compare(va)
	})
}
