package loader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocator is returned for locators that name no known source.
var ErrInvalidLocator = errors.New("invalid plugin locator")

// Source is where a plugin comes from.
type Source int

const (
	SourceBuiltin Source = iota
	SourceFile
	SourceURL
)

func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceFile:
		return "file"
	default:
		return "url"
	}
}

// Locator points at a plugin: builtin:<name>, file:<path>, a bare path or an http(s) URL.
type Locator struct {
	Source Source
	Value  string
}

func (l Locator) String() string {
	if l.Source == SourceURL {
		return l.Value
	}
	return l.Source.String() + ":" + l.Value
}

// ParseLocator parses raw into a Locator.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Locator{}, fmt.Errorf("%w: empty", ErrInvalidLocator)
	case strings.HasPrefix(raw, "builtin:"):
		name := strings.TrimPrefix(raw, "builtin:")
		if name == "" {
			return Locator{}, fmt.Errorf("%w: %q names no builtin", ErrInvalidLocator, raw)
		}
		return Locator{Source: SourceBuiltin, Value: name}, nil
	case strings.HasPrefix(raw, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(raw, "file:"), "//")
		if path == "" {
			return Locator{}, fmt.Errorf("%w: %q names no file", ErrInvalidLocator, raw)
		}
		return Locator{Source: SourceFile, Value: path}, nil
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		return Locator{Source: SourceURL, Value: raw}, nil
	case strings.Contains(raw, "://"):
		return Locator{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidLocator, raw)
	default:
		return Locator{Source: SourceFile, Value: raw}, nil
	}
}

// FileStem is the cache file name of the plugin for tool id without extension.
func FileStem(id string) string {
	stem := strings.ReplaceAll(strings.ToLower(id), "-", "_")
	if strings.HasSuffix(stem, "_plugin") {
		return stem
	}
	return stem + "_plugin"
}
