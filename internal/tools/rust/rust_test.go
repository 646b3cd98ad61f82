package rust_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/internal/config"
	"github.com/mmiszy/proto/internal/install"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/resolve"
	"github.com/mmiszy/proto/internal/tool"
	"github.com/mmiszy/proto/internal/tools/rust"
)

type fakeRunner struct {
	toolchains []string
	calls      []string
	fail       string
}

func (f *fakeRunner) ExecCommand(_ context.Context, in v1.ExecCommandInput) (v1.ExecCommandOutput, error) {
	call := strings.Join(append([]string{in.Command}, in.Args...), " ")
	f.calls = append(f.calls, call)
	if call == f.fail {
		return v1.ExecCommandOutput{ExitCode: 1, Stderr: "boom"}, nil
	}

	switch {
	case in.Command == "git":
		return v1.ExecCommandOutput{Stdout: "a\trefs/tags/1.68.0\nb\trefs/tags/1.69.0\nc\trefs/tags/release-0.1\n"}, nil
	case call == "rustup toolchain list":
		return v1.ExecCommandOutput{Stdout: strings.Join(f.toolchains, "\n")}, nil
	case strings.HasPrefix(call, "rustup toolchain install "):
		f.toolchains = append(f.toolchains, in.Args[2]+"-x86_64-unknown-linux-gnu")
		return v1.ExecCommandOutput{}, nil
	case strings.HasPrefix(call, "rustup toolchain uninstall "):
		f.toolchains = nil
		return v1.ExecCommandOutput{}, nil
	}
	return v1.ExecCommandOutput{}, errors.New("unexpected command " + call)
}

func newTool(t *testing.T, runner *fakeRunner) *tool.Tool {
	t.Helper()
	tl, err := tool.New(context.Background(), rust.ID, rust.New(runner).Plugin(rust.ID), config.NewPaths(t.TempDir()))
	require.NoError(t, err)
	return tl
}

func TestRegister(t *testing.T) {
	r := require.New(t)
	tl := newTool(t, &fakeRunner{})
	r.Equal("Rust", tl.Name)
	r.Equal(v1.TypeExecutableOnPath, tl.Type)
}

func TestResolveFromTags(t *testing.T) {
	r := require.New(t)
	resolved, err := resolve.New(newTool(t, &fakeRunner{})).Resolve(context.Background(), "latest")
	r.NoError(err)
	r.Equal("1.69.0", resolved.Version())
}

func TestParseVersionFile(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	p := rust.New(&fakeRunner{}).Plugin(rust.ID)

	out, err := plugin.Call[v1.ParseVersionFileInput, v1.ParseVersionFileOutput](ctx, p, v1.ParseVersionFile, v1.ParseVersionFileInput{
		File:    "rust-toolchain.toml",
		Content: "[toolchain]\nchannel = \"1.68.0\"\ncomponents = [\"clippy\"]\n",
	})
	r.NoError(err)
	r.Equal("1.68.0", out.Version)

	out, err = plugin.Call[v1.ParseVersionFileInput, v1.ParseVersionFileOutput](ctx, p, v1.ParseVersionFile, v1.ParseVersionFileInput{
		File:    "rust-toolchain",
		Content: "1.69.0\n",
	})
	r.NoError(err)
	r.Equal("1.69.0", out.Version)

	_, err = plugin.Call[v1.ParseVersionFileInput, v1.ParseVersionFileOutput](ctx, p, v1.ParseVersionFile, v1.ParseVersionFileInput{
		File:    "rust-toolchain.toml",
		Content: "[toolchain",
	})
	r.Error(err)
}

func TestInstallLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	runner := &fakeRunner{}
	tl := newTool(t, runner)
	rv := tl.Resolved("1.68.0")
	pipeline := install.New(nil, tl.Paths.Bin)

	installed, err := pipeline.Setup(ctx, rv)
	r.NoError(err)
	r.True(installed)
	r.True(rv.IsInstalled())
	r.Contains(runner.calls, "rustup toolchain install 1.68.0")

	paths, err := pipeline.CreateShims(ctx, rv)
	r.NoError(err)
	r.Empty(paths)

	removed, err := pipeline.Uninstall(ctx, rv)
	r.NoError(err)
	r.True(removed)
	r.Contains(runner.calls, "rustup toolchain uninstall 1.68.0")
	r.False(rv.IsInstalled())
}

func TestInstallAlreadyInRustup(t *testing.T) {
	r := require.New(t)
	runner := &fakeRunner{toolchains: []string{"1.68.0-aarch64-apple-darwin (default)"}}
	rv := newTool(t, runner).Resolved("1.68.0")

	installed, err := install.New(nil, t.TempDir()).Install(context.Background(), rv)
	r.NoError(err)
	r.False(installed)
	r.NotContains(runner.calls, "rustup toolchain install 1.68.0")
	r.True(rv.IsInstalled())
}

func TestInstallFailure(t *testing.T) {
	r := require.New(t)
	runner := &fakeRunner{fail: "rustup toolchain install 1.68.0"}
	rv := newTool(t, runner).Resolved("1.68.0")

	_, err := install.New(nil, t.TempDir()).Install(context.Background(), rv)
	r.ErrorContains(err, "exited with 1: boom")
	var pluginErr *plugin.PluginError
	r.ErrorAs(err, &pluginErr)
	r.Equal(v1.Install, pluginErr.Capability)
	r.False(rv.IsInstalled())
}
