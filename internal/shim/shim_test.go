package shim_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/shim"
)

func TestPlan(t *testing.T) {
	r := require.New(t)
	installDir := filepath.Join("root", "tools", "node", "20.0.0")

	shims, err := shim.Plan("node", "20.0.0", installDir, "bin/node", v1.CreateShimsOutput{
		GlobalShims: map[string]v1.ShimConfig{
			"npx": {BinPath: "bin/npx.js", ParentBin: "node"},
		},
		LocalShims: map[string]v1.ShimConfig{
			"npm": {BinPath: "lib/npm.js", ParentBin: "node", BeforeArgs: []string{"--no-warnings"}},
		},
	})
	r.NoError(err)
	r.Len(shims, 3)

	r.Equal(shim.Global, shims[0].Kind)
	r.Equal("node", shims[0].Name)
	r.Equal(filepath.Join(installDir, "bin", "node"), shims[0].Bin)
	r.Equal([]string{filepath.Join(installDir, "bin", "node")}, shims[0].Command())

	r.Equal("npx", shims[1].Name)
	r.Equal([]string{"node", filepath.Join(installDir, "bin", "npx.js")}, shims[1].Command())

	r.Equal(shim.Local, shims[2].Kind)
	r.Equal([]string{"node", filepath.Join(installDir, "lib", "npm.js"), "--no-warnings"}, shims[2].Command())
}

func TestPlanNoPrimaryGlobal(t *testing.T) {
	r := require.New(t)

	shims, err := shim.Plan("npm", "10.0.0", "dir", "bin/npm", v1.CreateShimsOutput{NoPrimaryGlobal: true})
	r.NoError(err)
	r.Empty(shims)

	shims, err = shim.Plan("npm", "10.0.0", "dir", "bin/npm", v1.CreateShimsOutput{
		GlobalShims: map[string]v1.ShimConfig{"npm": {ParentBin: "node"}},
	})
	r.NoError(err)
	r.Len(shims, 1)
	r.Equal("node", shims[0].ParentBin)
}

func TestPlanRejectsPaths(t *testing.T) {
	for _, name := range []string{"../evil", "a/b", `a\b`, ".."} {
		_, err := shim.Plan("node", "1.0.0", "dir", "bin/node", v1.CreateShimsOutput{
			LocalShims: map[string]v1.ShimConfig{name: {}},
		})
		require.ErrorIs(t, err, shim.ErrInvalidName, name)
	}

	for _, bin := range []string{"../../outside", "/usr/bin/env"} {
		_, err := shim.Plan("node", "1.0.0", "dir", "bin/node", v1.CreateShimsOutput{
			GlobalShims: map[string]v1.ShimConfig{"npx": {BinPath: bin}},
		})
		require.ErrorIs(t, err, shim.ErrInvalidBinPath, bin)
	}
}

func TestWrite(t *testing.T) {
	s := shim.Shim{
		Name:       "npx",
		Tool:       "node",
		Version:    "20.0.0",
		Bin:        "/root/tools/node/20.0.0/bin/npx's.js",
		ParentBin:  "node",
		BeforeArgs: []string{"--flag"},
	}

	tests := []struct {
		name    string
		os      v1.HostOS
		kind    shim.Kind
		file    string
		content string
	}{
		{
			name: "unix global",
			os:   v1.OSLinux,
			kind: shim.Global,
			file: "npx",
			content: "#!/bin/sh\n# global shim for node 20.0.0\n" +
				`exec 'node' '/root/tools/node/20.0.0/bin/npx'\''s.js' '--flag' "$@"` + "\n",
		},
		{
			name: "unix local",
			os:   v1.OSMacOS,
			kind: shim.Local,
			file: "npx",
			content: "#!/bin/sh\n# local shim for node 20.0.0\n" +
				`exec 'node' '/root/tools/node/20.0.0/bin/npx'\''s.js' '--flag' "$@"` + "\n",
		},
		{
			name: "windows global",
			os:   v1.OSWindows,
			kind: shim.Global,
			file: "npx.cmd",
			content: "@echo off\r\nrem global shim for node 20.0.0\r\n" +
				`"node" "/root/tools/node/20.0.0/bin/npx's.js" "--flag" %*` + "\r\nexit /b %ERRORLEVEL%\r\n",
		},
		{
			name: "windows local",
			os:   v1.OSWindows,
			kind: shim.Local,
			file: "npx.ps1",
			content: "#!/usr/bin/env pwsh\n# local shim for node 20.0.0\n" +
				`& 'node' '/root/tools/node/20.0.0/bin/npx''s.js' '--flag' @args` + "\nexit $LASTEXITCODE\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			fs := afero.NewMemMapFs()
			w := shim.NewWriter(fs, tc.os)

			in := s
			in.Kind = tc.kind
			path, err := w.Write("/bin", in)
			r.NoError(err)
			r.Equal(filepath.Join("/bin", tc.file), path)

			data, err := afero.ReadFile(fs, path)
			r.NoError(err)
			r.Equal(tc.content, string(data))

			info, err := fs.Stat(path)
			r.NoError(err)
			r.Equal(0o755, int(info.Mode().Perm()))

			exists, err := afero.Exists(fs, path+".tmp")
			r.NoError(err)
			r.False(exists)
		})
	}
}

func TestWriteOverwrites(t *testing.T) {
	r := require.New(t)
	fs := afero.NewMemMapFs()
	w := shim.NewWriter(fs, v1.OSLinux)

	r.NoError(afero.WriteFile(fs, "/bin/node", []byte("stale"), 0o644))

	path, err := w.Write("/bin", shim.Shim{Name: "node", Tool: "node", Version: "20.0.0", Bin: "/t/node"})
	r.NoError(err)

	data, err := afero.ReadFile(fs, path)
	r.NoError(err)
	r.Contains(string(data), "exec '/t/node' \"$@\"")

	r.NoError(w.Remove("/bin", shim.Shim{Name: "node"}))
	r.NoError(w.Remove("/bin", shim.Shim{Name: "node"}))
	exists, err := afero.Exists(fs, path)
	r.NoError(err)
	r.False(exists)
}
