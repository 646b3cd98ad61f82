// Package resolve reduces version specifiers to concrete versions.
//
// The order of rules is:
//
//  1. exact versions (v prefix stripped), checked against the release list when there is one
//  2. partial versions and ranges, expanded to the highest matching release
//  3. latest, stable and lts tags, delegated to the resolve_version capability
//  4. aliases from the tool manifest, then the tool's resolve_version and built-in aliases
//
// A specifier matching nothing fails with UnknownAliasError, a version matching no release
// with ResolveFailedError. Resolution never writes the manifest.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/manifest"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/tool"
)

// maxIndirections bounds alias and candidate chains.
const maxIndirections = 8

// Resolver resolves specifiers for one tool and caches results for its lifetime.
type Resolver struct {
	tool *tool.Tool

	mu       sync.Mutex
	resolved map[string]string
	releases *Releases
}

func New(t *tool.Tool) *Resolver {
	return &Resolver{
		tool:     t,
		resolved: map[string]string{},
	}
}

// Tool is the tool this resolver works for.
func (r *Resolver) Tool() *tool.Tool { return r.tool }

// Resolve reduces spec to a concrete version of the tool.
func (r *Resolver) Resolve(ctx context.Context, spec string) (*tool.Resolved, error) {
	spec = strings.TrimSpace(spec)
	key := strings.ToLower(spec)

	r.mu.Lock()
	cached, ok := r.resolved[key]
	r.mu.Unlock()
	if ok {
		return r.tool.Resolved(cached), nil
	}

	m, err := r.tool.Manifest()
	if err != nil {
		return nil, err
	}

	version, err := r.resolve(ctx, m, spec, spec, 0)
	if err != nil {
		return nil, err
	}

	slogcontext.FromCtx(ctx).DebugContext(ctx, "resolved version", "tool", r.tool.ID, "spec", spec, "version", version)

	r.mu.Lock()
	r.resolved[key] = version
	r.resolved[strings.ToLower(version)] = version
	r.mu.Unlock()

	return r.tool.Resolved(version), nil
}

func (r *Resolver) resolve(ctx context.Context, m *manifest.Manifest, spec, initial string, depth int) (string, error) {
	if depth > maxIndirections {
		return "", &ResolveFailedError{Tool: r.tool.ID, Spec: initial, Err: errors.New("too many indirections")}
	}
	if spec == "" {
		return "", &UnknownAliasError{Tool: r.tool.ID, Spec: initial}
	}

	if IsExact(spec) {
		return r.exact(ctx, m, Clean(spec), initial)
	}

	if constraint, ok := partialConstraint(spec); ok {
		return r.partial(ctx, constraint, initial)
	}

	lower := normalizeTag(strings.ToLower(spec))
	reserved := IsReserved(lower)

	if !reserved {
		if target, ok := m.Alias(spec); ok {
			return r.resolve(ctx, m, target, initial, depth+1)
		}
	}

	out, err := plugin.Call[v1.ResolveVersionInput, v1.ResolveVersionOutput](ctx, r.tool.Plugin, v1.ResolveVersion, v1.ResolveVersionInput{Initial: lower})
	if err != nil {
		return "", err
	}
	if out.Version != "" {
		return r.resolve(ctx, m, out.Version, initial, depth+1)
	}
	if out.Candidate != "" && !strings.EqualFold(out.Candidate, lower) {
		return r.resolve(ctx, m, out.Candidate, initial, depth+1)
	}

	releases, err := r.Releases(ctx)
	if err != nil {
		return "", err
	}
	if target, ok := releases.Alias(lower); ok && !strings.EqualFold(target, lower) {
		return r.resolve(ctx, m, target, initial, depth+1)
	}
	if lower == Latest || lower == Stable {
		if latest := releases.Latest(); latest != "" {
			return r.resolve(ctx, m, latest, initial, depth+1)
		}
	}

	return "", &UnknownAliasError{Tool: r.tool.ID, Spec: initial}
}

func (r *Resolver) exact(ctx context.Context, m *manifest.Manifest, version, initial string) (string, error) {
	if m.IsInstalled(version) || r.tool.Resolved(version).IsInstalled() {
		return version, nil
	}

	releases, err := r.Releases(ctx)
	if err != nil {
		return "", err
	}
	if releases.Len() > 0 && !releases.Contains(version) {
		return "", &ResolveFailedError{Tool: r.tool.ID, Spec: initial}
	}
	return version, nil
}

func (r *Resolver) partial(ctx context.Context, constraint *semver.Constraints, initial string) (string, error) {
	releases, err := r.Releases(ctx)
	if err != nil {
		return "", err
	}
	if releases.Len() == 0 {
		return "", &ResolveFailedError{Tool: r.tool.ID, Spec: initial, Err: errors.New("no releases available")}
	}
	if v, ok := releases.Match(constraint); ok {
		return v, nil
	}
	return "", &ResolveFailedError{Tool: r.tool.ID, Spec: initial}
}

// Releases loads the release list of the tool once per resolver.
func (r *Resolver) Releases(ctx context.Context) (*Releases, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.releases != nil {
		return r.releases, nil
	}

	out, err := plugin.Call[v1.LoadVersionsInput, v1.LoadVersionsOutput](ctx, r.tool.Plugin, v1.LoadVersions, v1.LoadVersionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to load versions of %s: %w", r.tool.ID, err)
	}
	r.releases = NewReleases(out)
	return r.releases, nil
}
