// Package depman provides the node package managers npm, pnpm and yarn. They install from
// the npm registry and run their entry scripts through the node tool.
package depman

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/tools/node"
)

const DefaultRegistryURL = "https://registry.npmjs.org"

// Manager describes one package manager.
type Manager struct {
	ID   string
	Name string
	// Bin is the entry script of the package, relative to the unpacked tarball.
	Bin string
	// Extra are additional executables shipped by the package, by shim name.
	Extra map[string]string
}

var (
	Npm = Manager{
		ID:    "npm",
		Name:  "npm",
		Bin:   "bin/npm-cli.js",
		Extra: map[string]string{"npx": "bin/npx-cli.js"},
	}
	Pnpm = Manager{
		ID:    "pnpm",
		Name:  "pnpm",
		Bin:   "bin/pnpm.cjs",
		Extra: map[string]string{"pnpx": "bin/pnpx.cjs"},
	}
	Yarn = Manager{
		ID:    "yarn",
		Name:  "Yarn",
		Bin:   "bin/yarn.js",
		Extra: map[string]string{"yarnpkg": "bin/yarn.js"},
	}
)

// Managers lists every package manager by tool id.
var Managers = map[string]Manager{
	Npm.ID:  Npm,
	Pnpm.ID: Pnpm,
	Yarn.ID: Yarn,
}

// Fetcher loads JSON documents through the host fetch cache.
type Fetcher = node.Fetcher

// Tool implements the capabilities of one package manager.
type Tool struct {
	manager     Manager
	fetcher     Fetcher
	registryURL string
}

type Option func(*Tool)

// WithRegistryURL installs from a mirror of the npm registry.
func WithRegistryURL(url string) Option {
	return func(t *Tool) {
		t.registryURL = strings.TrimSuffix(url, "/")
	}
}

func New(manager Manager, fetcher Fetcher, opts ...Option) *Tool {
	t := &Tool{manager: manager, fetcher: fetcher, registryURL: DefaultRegistryURL}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Builtin constructs the package manager named id on top of the host fetch cache.
func Builtin(_ context.Context, id string, host *hostfn.Functions) (plugin.Plugin, error) {
	m, ok := Managers[id]
	if !ok {
		return nil, fmt.Errorf("%s is not a node package manager", id)
	}
	return New(m, host).Plugin(id), nil
}

// Plugin exposes t under tool id.
func (t *Tool) Plugin(id string) *plugin.Native {
	return plugin.NewNative(id, map[v1.Capability]plugin.Handler{
		v1.RegisterTool:       plugin.Handle(t.register),
		v1.DetectVersionFiles: plugin.Handle(t.detectVersionFiles),
		v1.ParseVersionFile:   plugin.Handle(t.parseVersionFile),
		v1.LoadVersions:       plugin.Handle(t.loadVersions),
		v1.DownloadPrebuilt:   plugin.Handle(t.downloadPrebuilt),
		v1.LocateBins:         plugin.Handle(t.locateBins),
		v1.CreateShims:        plugin.Handle(t.createShims),
	})
}

func (t *Tool) register(context.Context, v1.RegisterToolInput) (v1.RegisterToolOutput, error) {
	return v1.RegisterToolOutput{Name: t.manager.Name, TypeOf: v1.TypeNative}, nil
}

func (t *Tool) detectVersionFiles(context.Context, v1.Empty) (v1.DetectVersionOutput, error) {
	return v1.DetectVersionOutput{Files: []string{"package.json"}}, nil
}

// parseVersionFile reads the packageManager field, for example pnpm@8.6.0, and falls back
// to engines.<id>.
func (t *Tool) parseVersionFile(_ context.Context, in v1.ParseVersionFileInput) (v1.ParseVersionFileOutput, error) {
	if !gjson.Valid(in.Content) {
		return v1.ParseVersionFileOutput{}, fmt.Errorf("invalid %s", in.File)
	}
	if pm := gjson.Get(in.Content, "packageManager").String(); pm != "" {
		name, version, _ := strings.Cut(pm, "@")
		if name == t.manager.ID {
			// drop the corepack integrity suffix
			version, _, _ = strings.Cut(version, "+")
			return v1.ParseVersionFileOutput{Version: version}, nil
		}
	}
	engine := gjson.Get(in.Content, "engines."+t.manager.ID)
	if engine.Type != gjson.String {
		return v1.ParseVersionFileOutput{}, nil
	}
	return v1.ParseVersionFileOutput{Version: strings.TrimSpace(engine.String())}, nil
}

// loadVersions lists the published versions of the package. Dist tags become aliases.
func (t *Tool) loadVersions(ctx context.Context, _ v1.LoadVersionsInput) (v1.LoadVersionsOutput, error) {
	url := t.registryURL + "/" + t.manager.ID
	data, err := t.fetcher.FetchURL(ctx, url)
	if err != nil {
		return v1.LoadVersionsOutput{}, err
	}
	if !gjson.ValidBytes(data) {
		return v1.LoadVersionsOutput{}, fmt.Errorf("invalid registry document %s", url)
	}

	doc := gjson.ParseBytes(data)
	out := v1.LoadVersionsOutput{
		Latest:  doc.Get("dist-tags.latest").String(),
		Aliases: map[string]string{},
	}
	doc.Get("versions").ForEach(func(version, _ gjson.Result) bool {
		out.Versions = append(out.Versions, version.String())
		return true
	})
	doc.Get("dist-tags").ForEach(func(tag, version gjson.Result) bool {
		if tag.String() != "latest" {
			out.Aliases[strings.ToLower(tag.String())] = version.String()
		}
		return true
	})
	slogcontext.FromCtx(ctx).DebugContext(ctx, "loaded package manager releases", "tool", t.manager.ID, "count", len(out.Versions))
	return out, nil
}

func (t *Tool) downloadPrebuilt(_ context.Context, in v1.DownloadPrebuiltInput) (v1.DownloadPrebuiltOutput, error) {
	name := fmt.Sprintf("%s-%s.tgz", t.manager.ID, in.Env.Version)
	return v1.DownloadPrebuiltOutput{
		DownloadURL:   fmt.Sprintf("%s/%s/-/%s", t.registryURL, t.manager.ID, name),
		DownloadName:  name,
		ArchivePrefix: "package",
	}, nil
}

func (t *Tool) locateBins(context.Context, v1.LocateBinsInput) (v1.LocateBinsOutput, error) {
	return v1.LocateBinsOutput{BinPath: t.manager.Bin}, nil
}

// createShims runs every entry script through node.
func (t *Tool) createShims(context.Context, v1.CreateShimsInput) (v1.CreateShimsOutput, error) {
	shims := map[string]v1.ShimConfig{
		t.manager.ID: {BinPath: t.manager.Bin, ParentBin: node.ID},
	}
	for name, bin := range t.manager.Extra {
		shims[name] = v1.ShimConfig{BinPath: bin, ParentBin: node.ID}
	}
	return v1.CreateShimsOutput{GlobalShims: shims}, nil
}
