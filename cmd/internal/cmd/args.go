package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mmiszy/proto/cmd/setup"
	"github.com/mmiszy/proto/internal/detect"
	"github.com/mmiszy/proto/internal/tool"
)

// FallbackSpec is installed when no version is given or detected.
const FallbackSpec = "latest"

// ToolArg is a TOOL[@SPEC] argument.
type ToolArg struct {
	ID   string
	Spec string
}

func (a ToolArg) String() string {
	if a.Spec == "" {
		return a.ID
	}
	return a.ID + "@" + a.Spec
}

// ParseToolArg splits TOOL[@SPEC]. The id is lowercased.
func ParseToolArg(arg string) (ToolArg, error) {
	id, spec, _ := strings.Cut(strings.TrimSpace(arg), "@")
	if id == "" {
		return ToolArg{}, fmt.Errorf("missing tool id in %q", arg)
	}
	return ToolArg{ID: strings.ToLower(id), Spec: strings.TrimSpace(spec)}, nil
}

func ParseToolArgs(args []string) ([]ToolArg, error) {
	parsed := make([]ToolArg, 0, len(args))
	for _, arg := range args {
		a, err := ParseToolArg(arg)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, a)
	}
	return parsed, nil
}

// ProjectToolArgs returns the tools pinned in the .prototools file of the session.
func ProjectToolArgs(s *setup.Session) []ToolArg {
	args := make([]ToolArg, 0, len(s.Project.Tools))
	for id, spec := range s.Project.Tools {
		args = append(args, ToolArg{ID: id, Spec: spec})
	}
	slices.SortFunc(args, func(a, b ToolArg) int { return strings.Compare(a.ID, b.ID) })
	return args
}

// Resolve reduces a to a concrete version. Without a spec the version is detected from
// the working directory, falling back to FallbackSpec when allowed.
func Resolve(ctx context.Context, s *setup.Session, a ToolArg, fallback bool) (*tool.Resolved, error) {
	resolver, err := s.Resolver(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	spec := a.Spec
	if spec == "" {
		res, err := detect.Detect(ctx, resolver.Tool(), s.WorkDir)
		switch {
		case err == nil:
			spec = res.Spec
		case fallback && errors.Is(err, detect.ErrNotDetected):
			spec = FallbackSpec
		default:
			return nil, err
		}
	}
	return resolver.Resolve(ctx, spec)
}
