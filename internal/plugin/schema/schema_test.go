package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/schema"
)

const denoTOML = `
name = "Deno"

[platform.linux]
download-file = "deno-{arch}-unknown-linux-gnu.zip"
checksum-file = "deno-{arch}-unknown-linux-gnu.zip.sha256sum"
bin-path = "deno"

[platform.macos]
download-file = "deno-{arch}-apple-darwin.zip"
bin-path = "deno"

[install]
download-url = "https://github.com/denoland/deno/releases/download/v{version}/{download_file}"
checksum-url = "https://github.com/denoland/deno/releases/download/v{version}/{checksum_file}"

[install.arch]
x64 = "x86_64"
arm64 = "aarch64"

[resolve]
git-url = "https://github.com/denoland/deno"

[resolve.aliases]
stable-lts = "1.40.0"

[detect]
version-files = [".dvmrc"]

[shims.local]
denox = "bin/denox"
`

type fakeHost struct {
	fetched  map[string]string
	stdout   string
	exitCode int
	commands []v1.ExecCommandInput
}

func (h *fakeHost) FetchURL(_ context.Context, url string) ([]byte, error) {
	return []byte(h.fetched[url]), nil
}

func (h *fakeHost) ExecCommand(_ context.Context, in v1.ExecCommandInput) (v1.ExecCommandOutput, error) {
	h.commands = append(h.commands, in)
	return v1.ExecCommandOutput{Stdout: h.stdout, ExitCode: h.exitCode}, nil
}

func load(t *testing.T, content, ext string, host schema.Host) *plugin.Native {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deno"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	p, err := schema.Load("deno", path, host)
	require.NoError(t, err)
	return p
}

func TestSchemaPlugin(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	host := &fakeHost{stdout: "abc\trefs/tags/v1.40.0\ndef\trefs/tags/v1.41.0-rc.1\n123\trefs/tags/std/0.1.0\n456\trefs/tags/v1.39.4\n"}
	p := load(t, denoTOML, ".toml", host)

	meta, err := plugin.Call[v1.RegisterToolInput, v1.RegisterToolOutput](ctx, p, v1.RegisterTool, v1.RegisterToolInput{ID: "deno"})
	r.NoError(err)
	r.Equal("Deno", meta.Name)
	r.Equal(v1.TypeNative, meta.TypeOf)

	env := v1.Environment{OS: v1.OSLinux, Arch: v1.ArchX64, Version: "1.40.0"}
	dl, err := plugin.Call[v1.DownloadPrebuiltInput, v1.DownloadPrebuiltOutput](ctx, p, v1.DownloadPrebuilt, v1.DownloadPrebuiltInput{Env: env})
	r.NoError(err)
	r.Equal("https://github.com/denoland/deno/releases/download/v1.40.0/deno-x86_64-unknown-linux-gnu.zip", dl.DownloadURL)
	r.Equal("deno-x86_64-unknown-linux-gnu.zip", dl.DownloadName)
	r.Equal("https://github.com/denoland/deno/releases/download/v1.40.0/deno-x86_64-unknown-linux-gnu.zip.sha256sum", dl.ChecksumURL)
	r.Equal("deno-x86_64-unknown-linux-gnu.zip.sha256sum", dl.ChecksumName)

	bins, err := plugin.Call[v1.LocateBinsInput, v1.LocateBinsOutput](ctx, p, v1.LocateBins, v1.LocateBinsInput{Env: env})
	r.NoError(err)
	r.Equal("deno", bins.BinPath)

	versions, err := plugin.Call[v1.LoadVersionsInput, v1.LoadVersionsOutput](ctx, p, v1.LoadVersions, v1.LoadVersionsInput{})
	r.NoError(err)
	r.Equal([]string{"1.40.0", "1.41.0-rc.1", "1.39.4"}, versions.Versions)
	r.Equal(map[string]string{"stable-lts": "1.40.0"}, versions.Aliases)
	r.Len(host.commands, 1)
	r.Equal("git", host.commands[0].Command)
	r.Equal([]string{"ls-remote", "--tags", "--refs", "https://github.com/denoland/deno"}, host.commands[0].Args)

	files, err := plugin.Call[v1.Empty, v1.DetectVersionOutput](ctx, p, v1.DetectVersionFiles, v1.Empty{})
	r.NoError(err)
	r.Equal([]string{".dvmrc"}, files.Files)

	shims, err := plugin.Call[v1.CreateShimsInput, v1.CreateShimsOutput](ctx, p, v1.CreateShims, v1.CreateShimsInput{Env: env})
	r.NoError(err)
	r.Equal(map[string]v1.ShimConfig{"denox": {BinPath: "bin/denox"}}, shims.LocalShims)
	r.False(shims.NoPrimaryGlobal)

	_, err = plugin.Call[v1.DownloadPrebuiltInput, v1.DownloadPrebuiltOutput](ctx, p, v1.DownloadPrebuilt, v1.DownloadPrebuiltInput{
		Env: v1.Environment{OS: v1.OSWindows, Arch: v1.ArchX64, Version: "1.40.0"},
	})
	var pluginErr *plugin.PluginError
	r.ErrorAs(err, &pluginErr)
	r.Equal(v1.DownloadPrebuilt, pluginErr.Capability)
}

func TestSchemaGitFailure(t *testing.T) {
	p := load(t, denoTOML, ".toml", &fakeHost{exitCode: 128})
	_, err := plugin.Call[v1.LoadVersionsInput, v1.LoadVersionsOutput](context.Background(), p, v1.LoadVersions, v1.LoadVersionsInput{})
	require.ErrorContains(t, err, "exited with 128")
}

func TestSchemaFormats(t *testing.T) {
	const manifestURL = "https://example.com/index.json"
	host := &fakeHost{fetched: map[string]string{
		manifestURL: `{"releases":[{"version":"v2.0.0"},{"version":"v1.0.0"},{"version":"nightly"}]}`,
	}}

	tests := map[string]string{
		".json": `{
  "name": "Tool",
  "type": "executable-on-path",
  "platform": {"linux": {"download-file": "tool-{version}-{os}.tar.gz", "archive-prefix": "tool-{version}"}},
  "install": {"download-url": "https://example.com/{download_file}"},
  "resolve": {"manifest-url": "https://example.com/index.json", "manifest-version-path": "releases.#.version"},
  "shims": {"no-primary-global": true}
}`,
		".yaml": `name: Tool
type: executable-on-path
platform:
  linux:
    download-file: "tool-{version}-{os}.tar.gz"
    archive-prefix: "tool-{version}"
install:
  download-url: "https://example.com/{download_file}"
resolve:
  manifest-url: "https://example.com/index.json"
  manifest-version-path: "releases.#.version"
shims:
  no-primary-global: true
`,
	}

	for ext, content := range tests {
		t.Run(ext, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			p := load(t, content, ext, host)

			meta, err := plugin.Call[v1.RegisterToolInput, v1.RegisterToolOutput](ctx, p, v1.RegisterTool, v1.RegisterToolInput{})
			r.NoError(err)
			r.Equal(v1.TypeExecutableOnPath, meta.TypeOf)

			dl, err := plugin.Call[v1.DownloadPrebuiltInput, v1.DownloadPrebuiltOutput](ctx, p, v1.DownloadPrebuilt, v1.DownloadPrebuiltInput{
				Env: v1.Environment{OS: v1.OSLinux, Arch: v1.ArchArm64, Version: "2.0.0"},
			})
			r.NoError(err)
			r.Equal("https://example.com/tool-2.0.0-linux.tar.gz", dl.DownloadURL)
			r.Equal("tool-2.0.0", dl.ArchivePrefix)
			r.Empty(dl.ChecksumURL)

			versions, err := plugin.Call[v1.LoadVersionsInput, v1.LoadVersionsOutput](ctx, p, v1.LoadVersions, v1.LoadVersionsInput{})
			r.NoError(err)
			r.Equal([]string{"2.0.0", "1.0.0"}, versions.Versions)

			shims, err := plugin.Call[v1.CreateShimsInput, v1.CreateShimsOutput](ctx, p, v1.CreateShims, v1.CreateShimsInput{})
			r.NoError(err)
			r.True(shims.NoPrimaryGlobal)

			r.False(p.Implements(v1.DetectVersionFiles))
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		content string
	}{
		{name: "unknown field", ext: ".toml", content: "name = \"x\"\nunknown = 1\n[install]\ndownload-url = \"u\"\n[platform.linux]\ndownload-file = \"f\""},
		{name: "missing name", ext: ".toml", content: "[install]\ndownload-url = \"u\"\n[platform.linux]\ndownload-file = \"f\""},
		{name: "missing download url", ext: ".json", content: `{"name":"x","platform":{"linux":{"download-file":"f"}}}`},
		{name: "missing platforms", ext: ".yaml", content: "name: x\ninstall:\n  download-url: u\n"},
		{name: "missing download file", ext: ".yaml", content: "name: x\ninstall:\n  download-url: u\nplatform:\n  linux:\n    bin-path: b\n"},
		{name: "unknown type", ext: ".json", content: `{"name":"x","type":"magic","install":{"download-url":"u"},"platform":{"linux":{"download-file":"f"}}}`},
		{name: "both sources", ext: ".json", content: `{"name":"x","install":{"download-url":"u"},"platform":{"linux":{"download-file":"f"}},"resolve":{"git-url":"g","manifest-url":"m"}}`},
		{name: "bad pattern", ext: ".json", content: `{"name":"x","install":{"download-url":"u"},"platform":{"linux":{"download-file":"f"}},"resolve":{"version-pattern":"("}}`},
		{name: "unknown extension", ext: ".ini", content: "name=x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schema.Parse([]byte(tc.content), tc.ext)
			require.ErrorIs(t, err, schema.ErrInvalidSchema)
		})
	}
}

func TestIsSchemaFile(t *testing.T) {
	r := require.New(t)
	for _, name := range []string{"a.toml", "a.JSON", "a.yaml", "a.yml"} {
		r.True(schema.IsSchemaFile(name), name)
	}
	for _, name := range []string{"a.wasm", "a.tar.gz", "a"} {
		r.False(schema.IsSchemaFile(name), name)
	}
}
