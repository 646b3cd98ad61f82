// Package rust provides the rust tool, which delegates toolchain management to rustup.
package rust

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
)

const (
	ID = "rust"

	rustup        = "rustup"
	repositoryURL = "https://github.com/rust-lang/rust"
	toolchainTOML = "rust-toolchain.toml"
	toolchainFile = "rust-toolchain"
)

// Runner executes rustup and git.
type Runner interface {
	ExecCommand(ctx context.Context, input v1.ExecCommandInput) (v1.ExecCommandOutput, error)
}

// Tool implements the rust capabilities.
type Tool struct {
	runner Runner
}

func New(runner Runner) *Tool {
	return &Tool{runner: runner}
}

// Builtin constructs the rust plugin on top of the host command runner.
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
		v1.Install:            plugin.Handle(t.install),
		v1.Uninstall:          plugin.Handle(t.uninstall),
	})
}

func (t *Tool) register(context.Context, v1.RegisterToolInput) (v1.RegisterToolOutput, error) {
	return v1.RegisterToolOutput{Name: "Rust", TypeOf: v1.TypeExecutableOnPath}, nil
}

func (t *Tool) detectVersionFiles(context.Context, v1.Empty) (v1.DetectVersionOutput, error) {
	return v1.DetectVersionOutput{Files: []string{toolchainTOML, toolchainFile}}, nil
}

func (t *Tool) parseVersionFile(_ context.Context, in v1.ParseVersionFileInput) (v1.ParseVersionFileOutput, error) {
	if in.File != toolchainTOML {
		return v1.ParseVersionFileOutput{Version: strings.TrimSpace(in.Content)}, nil
	}

	var doc struct {
		Toolchain struct {
			Channel string `toml:"channel"`
		} `toml:"toolchain"`
	}
	if err := toml.Unmarshal([]byte(in.Content), &doc); err != nil {
		return v1.ParseVersionFileOutput{}, fmt.Errorf("invalid %s: %w", toolchainTOML, err)
	}
	return v1.ParseVersionFileOutput{Version: doc.Toolchain.Channel}, nil
}

func (t *Tool) loadVersions(ctx context.Context, _ v1.LoadVersionsInput) (v1.LoadVersionsOutput, error) {
	out, err := t.run(ctx, "git", "ls-remote", "--tags", "--refs", repositoryURL)
	if err != nil {
		return v1.LoadVersionsOutput{}, err
	}

	var versions []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if tag, ok := strings.CutPrefix(fields[1], "refs/tags/"); ok && strings.Count(tag, ".") == 2 {
			versions = append(versions, tag)
		}
	}
	return v1.LoadVersionsOutput{Versions: versions}, scanner.Err()
}

func (t *Tool) install(ctx context.Context, in v1.InstallInput) (v1.InstallOutput, error) {
	installed, err := t.isInstalled(ctx, in.Env.Version)
	if err != nil {
		return v1.InstallOutput{}, err
	}
	if installed {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "toolchain already installed, continuing", "tool", ID, "version", in.Env.Version)
		return v1.InstallOutput{Installed: false}, nil
	}
	if _, err := t.run(ctx, rustup, "toolchain", "install", in.Env.Version); err != nil {
		return v1.InstallOutput{}, err
	}
	return v1.InstallOutput{Installed: true}, nil
}

func (t *Tool) uninstall(ctx context.Context, in v1.UninstallInput) (v1.UninstallOutput, error) {
	installed, err := t.isInstalled(ctx, in.Env.Version)
	if err != nil {
		return v1.UninstallOutput{}, err
	}
	if !installed {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "toolchain has not been installed, aborting", "tool", ID, "version", in.Env.Version)
		return v1.UninstallOutput{Uninstalled: false}, nil
	}
	if _, err := t.run(ctx, rustup, "toolchain", "uninstall", in.Env.Version); err != nil {
		return v1.UninstallOutput{}, err
	}
	return v1.UninstallOutput{Uninstalled: true}, nil
}

// isInstalled looks for a toolchain named <version>-<target triple> in rustup.
func (t *Tool) isInstalled(ctx context.Context, version string) (bool, error) {
	out, err := t.run(ctx, rustup, "toolchain", "list")
	if err != nil {
		return false, err
	}
	for line := range strings.Lines(out) {
		name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		if name == version || strings.HasPrefix(name, version+"-") {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tool) run(ctx context.Context, command string, args ...string) (string, error) {
	out, err := t.runner.ExecCommand(ctx, v1.ExecCommandInput{Command: command, Args: args, Env: rustupEnv()})
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", command, err)
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("%s %s exited with %d: %s", command, strings.Join(args, " "), out.ExitCode, strings.TrimSpace(out.Stderr))
	}
	return out.Stdout, nil
}

// rustupEnv passes the rustup and cargo homes through to spawned commands.
func rustupEnv() map[string]string {
	env := map[string]string{}
	for _, key := range []string{"RUSTUP_HOME", "CARGO_HOME", "RUSTUP_TOOLCHAIN"} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env
}
