// Package detect finds the version specifier a project expects for a tool.
package detect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/tool"
	"github.com/mmiszy/proto/internal/toolsconfig"
)

// ErrNotDetected is returned when no directory and no default pins a version.
var ErrNotDetected = errors.New("no version detected")

// NotDetectedError names the tool and the directory detection started from.
type NotDetectedError struct {
	Tool string
	Dir  string
}

func (e *NotDetectedError) Error() string {
	return fmt.Sprintf("%s: no version detected from %s and no default version set", e.Tool, e.Dir)
}

func (e *NotDetectedError) Is(target error) bool { return target == ErrNotDetected }

// Result is a detected specifier and the file it came from. Path is empty for the
// default version of the manifest.
type Result struct {
	Spec string
	Path string
}

// Detect walks from dir up to the filesystem root. In every directory the .prototools file
// is consulted first, then the version files the tool declares in priority order. When
// nothing matches, the default version of the tool manifest is used.
func Detect(ctx context.Context, t *tool.Tool, dir string) (Result, error) {
	logger := slogcontext.FromCtx(ctx).With("tool", t.ID)

	dir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, err
	}
	start := dir

	files, err := plugin.Call[v1.Empty, v1.DetectVersionOutput](ctx, t.Plugin, v1.DetectVersionFiles, v1.Empty{})
	if err != nil {
		return Result{}, err
	}

	for {
		if res, ok, err := detectIn(ctx, t, dir, files.Files); err != nil {
			return Result{}, err
		} else if ok {
			logger.DebugContext(ctx, "detected version", "spec", res.Spec, "path", res.Path)
			return res, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	m, err := t.Manifest()
	if err != nil {
		return Result{}, err
	}
	if m.DefaultVersion != "" {
		logger.DebugContext(ctx, "using default version", "spec", m.DefaultVersion)
		return Result{Spec: m.DefaultVersion}, nil
	}
	return Result{}, &NotDetectedError{Tool: t.ID, Dir: start}
}

func detectIn(ctx context.Context, t *tool.Tool, dir string, files []string) (Result, bool, error) {
	cfg, err := toolsconfig.Load(dir)
	if err != nil {
		return Result{}, false, err
	}
	if spec, ok := cfg.Version(t.ID); ok {
		return Result{Spec: spec, Path: cfg.Path}, true, nil
	}

	for _, name := range files {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Result{}, false, fmt.Errorf("%s: reading version file: %w", t.ID, err)
		}

		spec, err := parse(ctx, t, name, string(content))
		if err != nil {
			return Result{}, false, err
		}
		if spec != "" {
			return Result{Spec: spec, Path: path}, true, nil
		}
	}
	return Result{}, false, nil
}

func parse(ctx context.Context, t *tool.Tool, name, content string) (string, error) {
	if !t.Plugin.Implements(v1.ParseVersionFile) {
		return strings.TrimSpace(content), nil
	}
	out, err := plugin.Call[v1.ParseVersionFileInput, v1.ParseVersionFileOutput](ctx, t.Plugin, v1.ParseVersionFile, v1.ParseVersionFileInput{
		File:    name,
		Content: content,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Version), nil
}
