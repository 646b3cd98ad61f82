package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmiszy/proto/internal/manifest"
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ValidateAlias rejects alias names that would shadow versions or reserved tags.
func ValidateAlias(name string) error {
	if !aliasPattern.MatchString(name) || IsExact(name) || IsReserved(name) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, name)
	}
	if _, ok := partialConstraint(name); ok {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, name)
	}
	return nil
}

// SetAlias resolves spec and stores the result under name in the tool manifest.
func (r *Resolver) SetAlias(ctx context.Context, name, spec string) (string, error) {
	if err := ValidateAlias(name); err != nil {
		return "", err
	}
	resolved, err := r.Resolve(ctx, spec)
	if err != nil {
		return "", err
	}
	if _, err := manifest.Update(ctx, r.tool.ManifestFile(), func(m *manifest.Manifest) error {
		m.SetAlias(name, resolved.Version())
		return nil
	}); err != nil {
		return "", err
	}
	r.forget(name)
	return resolved.Version(), nil
}

// RemoveAlias deletes name from the tool manifest and reports whether it existed.
func (r *Resolver) RemoveAlias(ctx context.Context, name string) (bool, error) {
	removed := false
	if _, err := manifest.Update(ctx, r.tool.ManifestFile(), func(m *manifest.Manifest) error {
		removed = m.RemoveAlias(name)
		return nil
	}); err != nil {
		return false, err
	}
	r.forget(name)
	return removed, nil
}

// SetDefault records version as the default of the tool.
func (r *Resolver) SetDefault(ctx context.Context, version string) error {
	_, err := manifest.Update(ctx, r.tool.ManifestFile(), func(m *manifest.Manifest) error {
		m.DefaultVersion = version
		return nil
	})
	return err
}

func (r *Resolver) forget(spec string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.resolved {
		if strings.EqualFold(key, spec) {
			delete(r.resolved, key)
		}
	}
}
