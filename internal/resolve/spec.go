package resolve

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	Latest = "latest"
	Stable = "stable"

	ltsPrefix = "lts-"
)

var (
	exactPattern   = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
	bareMinor      = regexp.MustCompile(`^v?\d+(\.\d+)?$`)
	rangeCharacter = regexp.MustCompile(`^[v\d~^<>=!*]`)
)

// IsExact reports whether spec is a fully qualified version, optionally prefixed with v.
func IsExact(spec string) bool {
	return exactPattern.MatchString(spec)
}

// Clean strips the v prefix of an exact version.
func Clean(spec string) string {
	if IsExact(spec) {
		return strings.TrimPrefix(spec, "v")
	}
	return spec
}

// IsReserved reports whether spec is delegated to the tool before alias lookup.
func IsReserved(spec string) bool {
	spec = normalizeTag(strings.ToLower(spec))
	return spec == Latest || spec == Stable || spec == "lts" || strings.HasPrefix(spec, ltsPrefix)
}

// normalizeTag rewrites lts/<name> to lts-<name>.
func normalizeTag(spec string) string {
	if rest, ok := strings.CutPrefix(spec, "lts/"); ok {
		return ltsPrefix + rest
	}
	return spec
}

// partialConstraint parses a partial version or range. Bare majors and minors match the
// highest patch release below the next minor or major.
func partialConstraint(spec string) (*semver.Constraints, bool) {
	if !rangeCharacter.MatchString(spec) {
		return nil, false
	}
	expr := spec
	if bareMinor.MatchString(spec) {
		expr = "~" + strings.TrimPrefix(spec, "v")
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, false
	}
	return c, true
}
