package loader_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/internal/download"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
	"github.com/mmiszy/proto/internal/plugin/loader"
)

// emptyModule is the smallest valid WebAssembly module.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

const schemaTOML = `
name = "Deno"

[platform.linux]
download-file = "deno.zip"

[install]
download-url = "https://example.com/{download_file}"
`

func zipArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestParseLocator(t *testing.T) {
	tests := []struct {
		raw  string
		want loader.Locator
	}{
		{raw: "builtin:rust", want: loader.Locator{Source: loader.SourceBuiltin, Value: "rust"}},
		{raw: "file:./plugins/deno.toml", want: loader.Locator{Source: loader.SourceFile, Value: "./plugins/deno.toml"}},
		{raw: "file:///opt/deno.wasm", want: loader.Locator{Source: loader.SourceFile, Value: "/opt/deno.wasm"}},
		{raw: "~/plugins/deno.wasm", want: loader.Locator{Source: loader.SourceFile, Value: "~/plugins/deno.wasm"}},
		{raw: " https://example.com/deno.toml ", want: loader.Locator{Source: loader.SourceURL, Value: "https://example.com/deno.toml"}},
		{raw: "http://example.com/deno.zip", want: loader.Locator{Source: loader.SourceURL, Value: "http://example.com/deno.zip"}},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := loader.ParseLocator(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	for _, raw := range []string{"", "builtin:", "file:", "ftp://example.com/x.wasm"} {
		_, err := loader.ParseLocator(raw)
		require.ErrorIs(t, err, loader.ErrInvalidLocator, raw)
	}
}

func TestFileStem(t *testing.T) {
	require.Equal(t, "wasm_test_plugin", loader.FileStem("Wasm-Test"))
	require.Equal(t, "node_plugin", loader.FileStem("node"))
	require.Equal(t, "node_plugin", loader.FileStem("node_plugin"))
	require.Equal(t, "node_plugin", loader.FileStem("Node-Plugin"))
}

func TestGetSchemaFile(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "deno.toml")
	r.NoError(os.WriteFile(path, []byte(schemaTOML), 0o644))

	reg := loader.New(loader.Options{Dir: t.TempDir()})
	reg.SetLocator("deno", "file:"+path)

	p, err := reg.Get(ctx, "deno")
	r.NoError(err)
	r.Equal("deno", p.ID())
	r.True(p.Implements(v1.DownloadPrebuilt))

	again, err := reg.Get(ctx, "deno")
	r.NoError(err)
	r.Same(p, again)
	r.NoError(reg.Close(ctx))
}

func TestGetRemoteSchemaIsCached(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	srv, requests := serve(t, map[string][]byte{"/plugins/deno.toml": []byte(schemaTOML)})
	dir := t.TempDir()

	for range 2 {
		reg := loader.New(loader.Options{Dir: dir})
		reg.SetLocator("deno", srv.URL+"/plugins/deno.toml")
		p, err := reg.Get(ctx, "deno")
		r.NoError(err)
		r.True(p.Implements(v1.RegisterTool))
		r.NoError(reg.Close(ctx))
	}

	r.EqualValues(1, requests.Load())
	r.FileExists(filepath.Join(dir, "deno_plugin.toml"))
}

func TestArchiveWrappedPlugin(t *testing.T) {
	ctx := context.Background()
	archive := zipArchive(t, map[string][]byte{
		"dist/another.wasm":   []byte("not the plugin"),
		"dist/wasm_test.wasm": emptyModule,
		"README.md":           []byte("readme"),
	})

	t.Run("remote", func(t *testing.T) {
		r := require.New(t)
		srv, requests := serve(t, map[string][]byte{"/releases/wasm-test.zip": archive})
		dir := t.TempDir()
		reg := loader.New(loader.Options{Dir: dir})
		loc, err := loader.ParseLocator(srv.URL + "/releases/wasm-test.zip")
		r.NoError(err)

		path, err := reg.Fetch(ctx, "wasm-test", loc)
		r.NoError(err)
		r.Equal(filepath.Join(dir, "wasm_test_plugin.wasm"), path)
		data, err := os.ReadFile(path)
		r.NoError(err)
		r.Equal(emptyModule, data)

		_, err = reg.Fetch(ctx, "wasm-test", loc)
		r.NoError(err)
		r.EqualValues(1, requests.Load())

		entries, err := os.ReadDir(dir)
		r.NoError(err)
		r.Len(entries, 1, "download directory left behind")

		reg.SetLocator("wasm-test", loc.String())
		p, err := reg.Get(ctx, "wasm-test")
		r.NoError(err)
		r.False(p.Implements(v1.LocateBins))
		r.NoError(reg.Close(ctx))
	})

	t.Run("local", func(t *testing.T) {
		r := require.New(t)
		src := filepath.Join(t.TempDir(), "plugin.zip")
		r.NoError(os.WriteFile(src, archive, 0o644))
		dir := t.TempDir()

		path, err := loader.New(loader.Options{Dir: dir}).Fetch(ctx, "wasm-test", loader.Locator{Source: loader.SourceFile, Value: src})
		r.NoError(err)
		data, err := os.ReadFile(path)
		r.NoError(err)
		r.Equal(emptyModule, data)
	})

	t.Run("no module inside", func(t *testing.T) {
		r := require.New(t)
		srv, _ := serve(t, map[string][]byte{"/empty.zip": zipArchive(t, map[string][]byte{"README.md": []byte("x")})})
		loc, err := loader.ParseLocator(srv.URL + "/empty.zip")
		r.NoError(err)

		_, err = loader.New(loader.Options{Dir: t.TempDir()}).Fetch(ctx, "wasm-test", loc)
		r.Error(err)
	})
}

func TestGetErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		_, err := loader.New(loader.Options{Dir: t.TempDir()}).Get(ctx, "nope")
		require.ErrorIs(t, err, loader.ErrUnknownTool)
	})

	t.Run("not found", func(t *testing.T) {
		r := require.New(t)
		srv, _ := serve(t, nil)
		reg := loader.New(loader.Options{Dir: t.TempDir()})
		reg.SetLocator("deno", srv.URL+"/deno.toml")

		_, err := reg.Get(ctx, "deno")
		r.ErrorIs(err, download.ErrNotFound)
		var loadErr *loader.LoadError
		r.ErrorAs(err, &loadErr)
		r.Equal("deno", loadErr.Tool)
	})

	t.Run("missing file", func(t *testing.T) {
		reg := loader.New(loader.Options{Dir: t.TempDir()})
		reg.SetLocator("deno", filepath.Join(t.TempDir(), "missing.toml"))
		_, err := reg.Get(ctx, "deno")
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestBuiltins(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	var built, closed atomic.Int32

	reg := loader.New(loader.Options{Dir: t.TempDir()})
	reg.RegisterBuiltin("fake", func(_ context.Context, id string, host *hostfn.Functions) (plugin.Plugin, error) {
		r.NotNil(host)
		built.Add(1)
		return plugin.NewNative(id, nil, plugin.WithCloser(func(context.Context) error {
			closed.Add(1)
			return nil
		})), nil
	})
	reg.SetLocator("other", "builtin:fake")

	p, err := reg.Get(ctx, "fake")
	r.NoError(err)
	r.Equal("fake", p.ID())
	_, err = reg.Get(ctx, "fake")
	r.NoError(err)

	other, err := reg.Get(ctx, "other")
	r.NoError(err)
	r.Equal("other", other.ID())
	r.EqualValues(2, built.Load())

	r.NoError(reg.Close(ctx))
	r.EqualValues(2, closed.Load())
}

func TestGetLoadsConcurrently(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	var built atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	reg := loader.New(loader.Options{Dir: t.TempDir()})
	reg.RegisterBuiltin("slow", func(_ context.Context, id string, _ *hostfn.Functions) (plugin.Plugin, error) {
		if built.Add(1) == 1 {
			close(started)
		}
		<-release
		return plugin.NewNative(id, nil), nil
	})
	reg.RegisterBuiltin("fast", func(_ context.Context, id string, _ *hostfn.Functions) (plugin.Plugin, error) {
		return plugin.NewNative(id, nil), nil
	})

	var wg sync.WaitGroup
	results := make([]plugin.Plugin, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := reg.Get(ctx, "slow")
			if err == nil {
				results[i] = p
			}
		}()
	}
	<-started

	// a slow load does not block other tools
	fast, err := reg.Get(ctx, "fast")
	r.NoError(err)
	r.Equal("fast", fast.ID())

	close(release)
	wg.Wait()
	for _, p := range results {
		r.NotNil(p)
		r.Same(results[0], p)
	}
	r.EqualValues(1, built.Load())
	r.NoError(reg.Close(ctx))
}
