// Package node provides the Node.js tool. Releases, LTS lines and prebuilt archives come
// from the official distribution index.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/tool"
)

const (
	ID = "node"

	DefaultDistURL = "https://nodejs.org/dist"

	nvmrc       = ".nvmrc"
	nodeVersion = ".node-version"
	packageJSON = "package.json"
)

// Fetcher loads JSON documents through the host fetch cache.
type Fetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// Tool implements the node capabilities.
type Tool struct {
	fetcher Fetcher
	distURL string
}

type Option func(*Tool)

// WithDistURL serves releases from a mirror of the distribution directory.
func WithDistURL(url string) Option {
	return func(t *Tool) {
		t.distURL = strings.TrimSuffix(url, "/")
	}
}

func New(fetcher Fetcher, opts ...Option) *Tool {
	t := &Tool{fetcher: fetcher, distURL: DefaultDistURL}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Builtin constructs the node plugin on top of the host fetch cache.
func Builtin(_ context.Context, id string, host *hostfn.Functions) (plugin.Plugin, error) {
	return New(host).Plugin(id), nil
}

// Plugin exposes t under tool id.
func (t *Tool) Plugin(id string) *plugin.Native {
	return plugin.NewNative(id, map[v1.Capability]plugin.Handler{
		v1.RegisterTool:       plugin.Handle(t.register),
		v1.DetectVersionFiles: plugin.Handle(t.detectVersionFiles),
		v1.ParseVersionFile:   plugin.Handle(t.parseVersionFile),
		v1.LoadVersions:       plugin.Handle(t.loadVersions),
		v1.ResolveVersion:     plugin.Handle(t.resolveVersion),
		v1.DownloadPrebuilt:   plugin.Handle(t.downloadPrebuilt),
		v1.LocateBins:         plugin.Handle(t.locateBins),
	})
}

func (t *Tool) register(context.Context, v1.RegisterToolInput) (v1.RegisterToolOutput, error) {
	return v1.RegisterToolOutput{Name: "Node.js", TypeOf: v1.TypeNative}, nil
}

func (t *Tool) detectVersionFiles(context.Context, v1.Empty) (v1.DetectVersionOutput, error) {
	return v1.DetectVersionOutput{Files: []string{nvmrc, nodeVersion, packageJSON}}, nil
}

// parseVersionFile reads engines.node from package.json and the whole content of the
// version manager files.
func (t *Tool) parseVersionFile(_ context.Context, in v1.ParseVersionFileInput) (v1.ParseVersionFileOutput, error) {
	if in.File != packageJSON {
		return v1.ParseVersionFileOutput{Version: strings.TrimSpace(in.Content)}, nil
	}
	if !gjson.Valid(in.Content) {
		return v1.ParseVersionFileOutput{}, fmt.Errorf("invalid %s", packageJSON)
	}
	engine := gjson.Get(in.Content, "engines.node")
	if engine.Type != gjson.String {
		return v1.ParseVersionFileOutput{}, nil
	}
	return v1.ParseVersionFileOutput{Version: strings.TrimSpace(engine.String())}, nil
}

// release is one entry of index.json. LTS is false or the codename of the LTS line.
type release struct {
	Version string          `json:"version"`
	LTS     json.RawMessage `json:"lts"`
}

func (r release) codename() string {
	var name string
	if err := json.Unmarshal(r.LTS, &name); err != nil {
		return ""
	}
	return strings.ToLower(name)
}

// loadVersions lists every release of index.json. Each LTS codename aliases the newest
// release of its line and lts aliases the newest LTS release.
func (t *Tool) loadVersions(ctx context.Context, _ v1.LoadVersionsInput) (v1.LoadVersionsOutput, error) {
	data, err := t.fetcher.FetchURL(ctx, t.distURL+"/index.json")
	if err != nil {
		return v1.LoadVersionsOutput{}, err
	}
	var releases []release
	if err := json.Unmarshal(data, &releases); err != nil {
		return v1.LoadVersionsOutput{}, fmt.Errorf("invalid release index: %w", err)
	}

	out := v1.LoadVersionsOutput{Aliases: map[string]string{}}
	for i, rel := range releases {
		version := strings.TrimPrefix(rel.Version, "v")
		if i == 0 {
			out.Latest = version
		}
		out.Versions = append(out.Versions, version)

		name := rel.codename()
		if name == "" {
			continue
		}
		if _, ok := out.Aliases[name]; !ok {
			out.Aliases[name] = version
		}
		if _, ok := out.Aliases["lts"]; !ok {
			out.Aliases["lts"] = version
		}
	}
	slogcontext.FromCtx(ctx).DebugContext(ctx, "loaded node releases", "count", len(out.Versions), "latest", out.Latest)
	return out, nil
}

// resolveVersion maps node and lts-<codename> to the aliases of loadVersions.
func (t *Tool) resolveVersion(_ context.Context, in v1.ResolveVersionInput) (v1.ResolveVersionOutput, error) {
	spec := strings.ToLower(in.Initial)
	switch {
	case spec == "node":
		return v1.ResolveVersionOutput{Candidate: "latest"}, nil
	case spec == "lts-*":
		return v1.ResolveVersionOutput{Candidate: "lts"}, nil
	case strings.HasPrefix(spec, "lts-"):
		return v1.ResolveVersionOutput{Candidate: strings.TrimPrefix(spec, "lts-")}, nil
	}
	return v1.ResolveVersionOutput{}, nil
}

func (t *Tool) downloadPrebuilt(_ context.Context, in v1.DownloadPrebuiltInput) (v1.DownloadPrebuiltOutput, error) {
	prefix, err := archivePrefix(in.Env)
	if err != nil {
		return v1.DownloadPrebuiltOutput{}, err
	}
	name := prefix + ".tar.xz"
	if in.Env.OS == v1.OSWindows {
		name = prefix + ".zip"
	}
	base := fmt.Sprintf("%s/v%s/", t.distURL, in.Env.Version)
	return v1.DownloadPrebuiltOutput{
		DownloadURL:   base + name,
		DownloadName:  name,
		ChecksumURL:   base + "SHASUMS256.txt",
		ArchivePrefix: prefix,
	}, nil
}

func archivePrefix(env v1.Environment) (string, error) {
	var os string
	switch env.OS {
	case v1.OSLinux:
		os = "linux"
	case v1.OSMacOS:
		os = "darwin"
	case v1.OSWindows:
		os = "win"
	default:
		return "", fmt.Errorf("node has no prebuilt release for %s", env.OS)
	}

	var arch string
	switch env.Arch {
	case v1.ArchX64, v1.ArchX86, v1.ArchArm64:
		arch = string(env.Arch)
	case v1.ArchArm:
		arch = "armv7l"
	default:
		return "", fmt.Errorf("node has no prebuilt release for %s", env.Arch)
	}
	return fmt.Sprintf("node-v%s-%s-%s", env.Version, os, arch), nil
}

func (t *Tool) locateBins(_ context.Context, in v1.LocateBinsInput) (v1.LocateBinsOutput, error) {
	if in.Env.OS == v1.OSWindows {
		return v1.LocateBinsOutput{BinPath: tool.ExeName(ID, in.Env.OS)}, nil
	}
	return v1.LocateBinsOutput{BinPath: "bin/" + ID}, nil
}
