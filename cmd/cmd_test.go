package cmd_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/cmd"
	"github.com/mmiszy/proto/cmd/list"
	"github.com/mmiszy/proto/cmd/setup/hooks"
	"github.com/mmiszy/proto/internal/manifest"
	"github.com/mmiszy/proto/internal/plugin"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/toolsconfig"
)

const schemaTemplate = `name = "My Tool"

[platform.linux]
download-file = "mytool-{version}.tar.gz"
archive-prefix = "mytool-{version}"
bin-path = "bin/mytool"

[platform.macos]
download-file = "mytool-{version}.tar.gz"
archive-prefix = "mytool-{version}"
bin-path = "bin/mytool"

[install]
download-url = "%[1]s/{download_file}"

[resolve]
manifest-url = "%[1]s/index.json"
manifest-version-path = "versions"
`

type fixture struct {
	root string
	work string
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("the test plugin only defines unix platforms")
	}

	files := map[string][]byte{
		"/index.json": []byte(`{"versions":["v1.0.0","v1.1.0","v2.0.0","v2.1.0-beta.1"]}`),
	}
	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		files["/mytool-"+v+".tar.gz"] = tarGz(t, map[string]string{
			"mytool-" + v + "/bin/mytool": "#!/bin/sh\necho " + v + "\n",
		})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	f := fixture{root: t.TempDir(), work: t.TempDir()}

	pluginFile := filepath.Join(t.TempDir(), "mytool.toml")
	require.NoError(t, os.WriteFile(pluginFile, []byte(fmt.Sprintf(schemaTemplate, srv.URL)), 0o644))
	config := fmt.Sprintf("plugins:\n  mytool: %q\ninstall:\n  concurrency: 2\n", "file:"+pluginFile)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "config.yaml"), []byte(config), 0o644))
	return f
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := cmd.New()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--root", f.root, "--working-directory", f.work}, args...))
	err := cmd.Run(root)
	return out.String(), err
}

func (f fixture) manifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Load(filepath.Join(f.root, "tools", "mytool", "manifest.json"))
	require.NoError(t, err)
	return m
}

func TestInstallLifecycle(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	out, err := f.run(t, "install", "mytool@1")
	r.NoError(err)
	r.Equal("My Tool 1.1.0 has been installed\n", out)

	bin := filepath.Join(f.root, "tools", "mytool", "1.1.0", "bin", "mytool")
	data, err := os.ReadFile(bin)
	r.NoError(err)
	r.Contains(string(data), "echo 1.1.0")

	shim, err := os.ReadFile(filepath.Join(f.root, "bin", "mytool"))
	r.NoError(err)
	r.Contains(string(shim), bin)
	r.Equal([]string{"1.1.0"}, f.manifest(t).InstalledVersions)

	out, err = f.run(t, "install", "mytool@1.1")
	r.NoError(err)
	r.Equal("My Tool 1.1.0 is already installed\n", out)

	out, err = f.run(t, "uninstall", "mytool@1.1.0")
	r.NoError(err)
	r.Equal("My Tool 1.1.0 has been uninstalled\n", out)
	r.NoDirExists(filepath.Join(f.root, "tools", "mytool", "1.1.0"))
	r.Empty(f.manifest(t).InstalledVersions)

	out, err = f.run(t, "uninstall", "mytool@1.1.0")
	r.NoError(err)
	r.Equal("My Tool 1.1.0 is not installed\n", out)
}

func TestInstallPinned(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.work, toolsconfig.FileName), []byte(`mytool = "~1.0"`), 0o644))

	_, err := f.run(t, "install")
	r.NoError(err)
	r.Equal([]string{"1.0.0"}, f.manifest(t).InstalledVersions)

	// a bare tool id uses the detected version
	out, err := f.run(t, "install", "mytool", "--pin")
	r.NoError(err)
	r.Equal("My Tool 1.0.0 is already installed\n", out)
	r.Equal("1.0.0", f.manifest(t).DefaultVersion)
}

func TestInstallWithoutTools(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "install")
	require.ErrorContains(t, err, "no tools given")
}

func TestResolveAndAliases(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	out, err := f.run(t, "resolve", "mytool@latest")
	r.NoError(err)
	r.Equal("2.0.0\n", out)

	// no pin and nothing detected
	out, err = f.run(t, "resolve", "mytool")
	r.NoError(err)
	r.Equal("2.0.0\n", out)

	out, err = f.run(t, "alias", "mytool", "work", "1.0")
	r.NoError(err)
	r.Equal("alias work of mytool points to 1.0.0\n", out)
	r.Equal(map[string]string{"work": "1.0.0"}, f.manifest(t).Aliases)

	out, err = f.run(t, "resolve", "mytool@work")
	r.NoError(err)
	r.Equal("1.0.0\n", out)

	_, err = f.run(t, "alias", "mytool", "latest", "1.0")
	r.Error(err)

	_, err = f.run(t, "unalias", "mytool", "work")
	r.NoError(err)
	_, err = f.run(t, "unalias", "mytool", "work")
	r.ErrorContains(err, "has no alias work")

	_, err = f.run(t, "resolve", "mytool@work")
	r.Error(err)

	_, err = f.run(t, "resolve", "unknown@1")
	r.ErrorContains(err, "unknown tool")
}

func TestLocal(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	out, err := f.run(t, "local", "mytool", "^1")
	r.NoError(err)
	r.Contains(out, "pinned mytool to ^1 (currently 1.1.0)")

	cfg, err := toolsconfig.Load(f.work)
	r.NoError(err)
	r.Equal(map[string]string{"mytool": "^1"}, cfg.Tools)

	_, err = f.run(t, "local", "mytool", "9")
	r.Error(err)
}

func TestList(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	_, err := f.run(t, "install", "mytool@2", "--pin")
	r.NoError(err)
	_, err = f.run(t, "alias", "mytool", "edge", "2.0.0")
	r.NoError(err)

	out, err := f.run(t, "list", "-o", "json")
	r.NoError(err)
	var entries []list.Entry
	r.NoError(json.Unmarshal([]byte(out), &entries))
	r.Equal([]list.Entry{
		{Tool: "mytool", Version: "2.0.0", Installed: true, Default: true, Aliases: []string{"edge"}},
	}, entries)

	out, err = f.run(t, "list", "mytool", "--remote", "-o", "json")
	r.NoError(err)
	entries = nil
	r.NoError(json.Unmarshal([]byte(out), &entries))
	r.Len(entries, 4)
	r.Equal("2.1.0-beta.1", entries[0].Version)
	r.True(entries[1].Installed)

	out, err = f.run(t, "list")
	r.NoError(err)
	r.True(strings.Contains(out, "mytool") && strings.Contains(out, "2.0.0"))

	_, err = f.run(t, "list", "--remote")
	r.Error(err)
}

func TestRunClosesSessionOnError(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	closed := 0

	root := cmd.New()
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(c *cobra.Command, _ []string) error {
			session, err := hooks.Session(c)
			if err != nil {
				return err
			}
			session.Plugins.RegisterBuiltin("fake", func(_ context.Context, id string, _ *hostfn.Functions) (plugin.Plugin, error) {
				return plugin.NewNative(id, nil, plugin.WithCloser(func(context.Context) error {
					closed++
					return nil
				})), nil
			})
			if _, err := session.Plugins.Get(c.Context(), "fake"); err != nil {
				return err
			}
			return errors.New("command failed")
		},
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--root", f.root, "--working-directory", f.work, "fail"})

	err := cmd.Run(root)
	r.ErrorContains(err, "command failed")
	r.Equal(1, closed)
}
