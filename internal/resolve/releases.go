package resolve

import (
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// Releases is a parsed release list, newest first.
type Releases struct {
	versions []*semver.Version
	latest   string
	aliases  map[string]string
}

// NewReleases parses the output of load_versions. Entries that are not versions are dropped.
func NewReleases(out v1.LoadVersionsOutput) *Releases {
	r := &Releases{
		latest:  strings.TrimSpace(out.Latest),
		aliases: make(map[string]string, len(out.Aliases)),
	}
	for _, raw := range out.Versions {
		v, err := semver.NewVersion(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		r.versions = append(r.versions, v)
	}
	slices.SortFunc(r.versions, func(a, b *semver.Version) int { return b.Compare(a) })
	r.versions = slices.CompactFunc(r.versions, func(a, b *semver.Version) bool { return a.Equal(b) })

	for name, target := range out.Aliases {
		r.aliases[strings.ToLower(name)] = target
	}
	return r
}

func (r *Releases) Len() int { return len(r.versions) }

// Versions returns the releases as strings without v prefix.
func (r *Releases) Versions() []string {
	out := make([]string, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v.String())
	}
	return out
}

// Contains reports whether version is a known release.
func (r *Releases) Contains(version string) bool {
	target, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(r.versions, func(v *semver.Version) bool { return v.Equal(target) })
}

// Match returns the highest release satisfying c.
func (r *Releases) Match(c *semver.Constraints) (string, bool) {
	for _, v := range r.versions {
		if c.Check(v) {
			return v.String(), true
		}
	}
	return "", false
}

// Alias looks up a built-in alias of the tool.
func (r *Releases) Alias(name string) (string, bool) {
	target, ok := r.aliases[strings.ToLower(name)]
	return target, ok
}

// Latest is the declared latest release, or the highest stable release.
func (r *Releases) Latest() string {
	if r.latest != "" {
		return r.latest
	}
	for _, v := range r.versions {
		if v.Prerelease() == "" {
			return v.String()
		}
	}
	return ""
}
