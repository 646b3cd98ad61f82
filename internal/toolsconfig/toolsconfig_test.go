package toolsconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/internal/toolsconfig"
)

func TestLoadMissing(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	cfg, err := toolsconfig.Load(dir)
	r.NoError(err)
	r.Equal(filepath.Join(dir, toolsconfig.FileName), cfg.Path)
	r.Empty(cfg.Tools)
	_, ok := cfg.Version("node")
	r.False(ok)
}

func TestLoad(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	r.NoError(os.WriteFile(filepath.Join(dir, toolsconfig.FileName), []byte(`
node = "18"
npm = "latest"

[plugins]
deno = "https://example.com/deno.toml"
`), 0o644))

	cfg, err := toolsconfig.Load(dir)
	r.NoError(err)
	r.Equal(map[string]string{"node": "18", "npm": "latest"}, cfg.Tools)
	r.Equal(map[string]string{"deno": "https://example.com/deno.toml"}, cfg.Plugins)

	v, ok := cfg.Version("node")
	r.True(ok)
	r.Equal("18", v)
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"syntax":        "node = ",
		"number":        "node = 18",
		"unknown table": "[other]\nnode = \"18\"",
		"plugin value":  "[plugins]\nnode = 1",
	} {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			dir := t.TempDir()
			r.NoError(os.WriteFile(filepath.Join(dir, toolsconfig.FileName), []byte(content), 0o644))

			_, err := toolsconfig.Load(dir)
			r.ErrorIs(err, toolsconfig.ErrInvalid)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	cfg, err := toolsconfig.Load(dir)
	r.NoError(err)
	cfg.Set("node", "20.0.0")
	cfg.Set("npm", "10")
	cfg.Plugins["deno"] = "file:./deno.toml"
	r.NoError(cfg.Save())

	again, err := toolsconfig.Load(dir)
	r.NoError(err)
	r.Equal(cfg.Tools, again.Tools)
	r.Equal(cfg.Plugins, again.Plugins)
	r.NoFileExists(cfg.Path + ".tmp")
}
