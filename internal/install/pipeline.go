// Package install drives a resolved tool version from download to shims.
//
// Every step can be run on its own and is idempotent: Download and DownloadChecksum skip
// existing files, Verify skips tools without a checksum, Install skips existing install
// directories and Uninstall skips missing ones. A second caller racing on the same version
// sees the finished file or directory and does nothing.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/mmiszy/proto/internal/archive"
	"github.com/mmiszy/proto/internal/download"
	"github.com/mmiszy/proto/internal/manifest"
	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/shim"
	"github.com/mmiszy/proto/internal/tool"
)

// DefaultConcurrency bounds SetupAll when no concurrency is configured.
const DefaultConcurrency = 4

// Pipeline installs tools into their install directories and writes shims to a bin directory.
type Pipeline struct {
	client      *http.Client
	binDir      string
	shims       *shim.Writer
	concurrency int

	group singleflight.Group
}

type Option func(*Pipeline)

// WithConcurrency bounds the number of tools set up in parallel by SetupAll.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithShimWriter replaces the shim writer, by default writing to the OS filesystem for the host.
func WithShimWriter(w *shim.Writer) Option {
	return func(p *Pipeline) {
		p.shims = w
	}
}

func New(client *http.Client, binDir string, opts ...Option) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Pipeline{
		client:      client,
		binDir:      binDir,
		concurrency: DefaultConcurrency,
		shims:       shim.NewWriter(afero.NewOsFs(), tool.HostEnvironment().OS),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Artifact is where the download of a resolved version and its checksum live.
type Artifact struct {
	v1.DownloadPrebuiltOutput
	DownloadPath string
	ChecksumPath string
}

// Prebuilt asks the tool for its download and maps it into the version's temp directory.
func (p *Pipeline) Prebuilt(ctx context.Context, r *tool.Resolved) (*Artifact, error) {
	out, err := plugin.Call[v1.DownloadPrebuiltInput, v1.DownloadPrebuiltOutput](ctx, r.Plugin(), v1.DownloadPrebuilt, v1.DownloadPrebuiltInput{Env: r.Env()})
	if err != nil {
		return nil, err
	}

	a := &Artifact{DownloadPrebuiltOutput: out}
	if out.DownloadURL != "" {
		if a.DownloadName == "" {
			if a.DownloadName, err = fileName(out.DownloadURL); err != nil {
				return nil, &StepError{Tool: r.ID(), Step: "download", Err: err}
			}
		}
		if !isFileName(a.DownloadName) {
			return nil, &StepError{Tool: r.ID(), Step: "download", Err: &UnsafePathError{Tool: r.ID(), Field: "download name", Path: a.DownloadName}}
		}
		a.DownloadPath = filepath.Join(r.TempDir(), a.DownloadName)
	}
	if out.ChecksumURL != "" {
		if a.ChecksumName == "" {
			if a.ChecksumName, err = fileName(out.ChecksumURL); err != nil {
				return nil, &StepError{Tool: r.ID(), Step: "verify", Err: err}
			}
		}
		if !isFileName(a.ChecksumName) {
			return nil, &StepError{Tool: r.ID(), Step: "verify", Err: &UnsafePathError{Tool: r.ID(), Field: "checksum name", Path: a.ChecksumName}}
		}
		a.ChecksumPath = filepath.Join(r.TempDir(), a.ChecksumName)
	}
	return a, nil
}

// isFileName reports whether name is a single local path element.
func isFileName(name string) bool {
	return filepath.IsLocal(name) && !strings.ContainsAny(name, `/\`)
}

func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("url %q does not name a file", raw)
	}
	return name, nil
}

// Download fetches the artifact of r unless it already exists. It reports whether a
// download happened.
func (p *Pipeline) Download(ctx context.Context, r *tool.Resolved) (bool, error) {
	a, err := p.Prebuilt(ctx, r)
	if err != nil {
		return false, err
	}
	if a.DownloadURL == "" {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "tool declares no download", "tool", r.ID())
		return false, nil
	}
	return p.fetch(ctx, r, "download", a.DownloadURL, a.DownloadPath)
}

// DownloadChecksum fetches the checksum file of r unless it already exists or none is declared.
func (p *Pipeline) DownloadChecksum(ctx context.Context, r *tool.Resolved) (bool, error) {
	a, err := p.Prebuilt(ctx, r)
	if err != nil {
		return false, err
	}
	if a.ChecksumURL == "" {
		return false, nil
	}
	return p.fetch(ctx, r, "verify", a.ChecksumURL, a.ChecksumPath)
}

func (p *Pipeline) fetch(ctx context.Context, r *tool.Resolved, step, url, dest string) (bool, error) {
	logger := slogcontext.FromCtx(ctx).With("tool", r.ID(), "url", url, "path", dest)
	if exists(dest) {
		logger.DebugContext(ctx, "already downloaded, continuing")
		return false, nil
	}

	if err := download.ToFile(ctx, p.client, url, dest); err != nil {
		return false, &StepError{Tool: r.ID(), Step: step, Err: err}
	}
	return true, nil
}

// Verify checks the downloaded artifact against the declared checksum. It reports false
// without error when no checksum is declared. A mismatch removes the artifact and fails
// with InvalidChecksumError.
func (p *Pipeline) Verify(ctx context.Context, r *tool.Resolved) (bool, error) {
	logger := slogcontext.FromCtx(ctx).With("tool", r.ID())

	a, err := p.Prebuilt(ctx, r)
	if err != nil {
		return false, err
	}
	if a.ChecksumURL == "" {
		logger.DebugContext(ctx, "no checksum declared, skipping verification")
		return false, nil
	}
	if a.DownloadPath == "" || !exists(a.DownloadPath) {
		return false, &MissingDownloadError{Tool: r.ID(), Path: a.DownloadPath}
	}
	if _, err := p.fetch(ctx, r, "verify", a.ChecksumURL, a.ChecksumPath); err != nil {
		return false, err
	}

	content, err := os.ReadFile(a.ChecksumPath)
	if err != nil {
		return false, &StepError{Tool: r.ID(), Step: "verify", Err: err}
	}

	var verified bool
	switch {
	case !hasDigest(string(content)):
		logger.DebugContext(ctx, "checksum file holds no digest", "path", a.ChecksumPath)
	case r.Plugin().Implements(v1.VerifyChecksum):
		verified, err = p.verifyWithPlugin(ctx, r, a, string(content))
	default:
		verified, err = p.verifyWithChecksumFile(a, string(content))
	}
	if err != nil {
		return false, &StepError{Tool: r.ID(), Step: "verify", Err: err}
	}

	if !verified {
		logger.DebugContext(ctx, "checksum mismatch, removing download", "path", a.DownloadPath)
		return false, errors.Join(
			&InvalidChecksumError{Tool: r.ID(), Path: a.DownloadPath, Checksum: a.ChecksumPath},
			os.Remove(a.DownloadPath),
		)
	}

	logger.DebugContext(ctx, "checksum verified", "path", a.DownloadPath)
	return true, nil
}

func (p *Pipeline) verifyWithPlugin(ctx context.Context, r *tool.Resolved, a *Artifact, content string) (bool, error) {
	sum, err := fileSHA256(a.DownloadPath)
	if err != nil {
		return false, err
	}
	out, err := plugin.Call[v1.VerifyChecksumInput, v1.VerifyChecksumOutput](ctx, r.Plugin(), v1.VerifyChecksum, v1.VerifyChecksumInput{
		DownloadFile:    a.DownloadPath,
		ChecksumFile:    a.ChecksumPath,
		Env:             r.Env(),
		DownloadSHA256:  sum,
		ChecksumContent: content,
	})
	if err != nil {
		return false, err
	}
	return out.Verified, nil
}

func (p *Pipeline) verifyWithChecksumFile(a *Artifact, content string) (bool, error) {
	expected, ok := expectedDigest(content, a.DownloadName)
	if !ok {
		return false, nil
	}
	return verifyFile(a.DownloadPath, expected)
}

// Install moves the downloaded artifact into the install directory of r. Archives are
// unpacked into a staging directory that is renamed into place, other files are moved there
// as the tool executable. Tools implementing the install capability install themselves.
// It reports false if r was already installed.
func (p *Pipeline) Install(ctx context.Context, r *tool.Resolved) (bool, error) {
	logger := slogcontext.FromCtx(ctx).With("tool", r.ID(), "version", r.Version())
	installDir := r.InstallDir()

	if r.IsInstalled() {
		logger.DebugContext(ctx, "tool already installed, continuing")
		return false, nil
	}

	var (
		installed bool
		err       error
	)
	if r.Plugin().Implements(v1.Install) {
		installed, err = p.installNative(ctx, r)
	} else {
		installed, err = p.installArtifact(ctx, r)
	}
	if err != nil {
		return false, err
	}

	if err := p.record(ctx, r, func(m *manifest.Manifest) { m.AddInstalled(r.Version()) }); err != nil {
		return false, err
	}
	logger.DebugContext(ctx, "successfully installed tool", "path", installDir)
	return installed, nil
}

func (p *Pipeline) installNative(ctx context.Context, r *tool.Resolved) (bool, error) {
	var downloadPath string
	if a, err := p.Prebuilt(ctx, r); err != nil {
		return false, err
	} else if a.DownloadPath != "" && exists(a.DownloadPath) {
		downloadPath = a.DownloadPath
	}

	out, err := plugin.Call[v1.InstallInput, v1.InstallOutput](ctx, r.Plugin(), v1.Install, v1.InstallInput{
		InstallDir:   r.InstallDir(),
		DownloadPath: downloadPath,
		Env:          r.Env(),
	})
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(r.InstallDir(), 0o755); err != nil {
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	return out.Installed, nil
}

func (p *Pipeline) installArtifact(ctx context.Context, r *tool.Resolved) (_ bool, err error) {
	a, err := p.Prebuilt(ctx, r)
	if err != nil {
		return false, err
	}
	if a.DownloadPath == "" || !exists(a.DownloadPath) {
		return false, &MissingDownloadError{Tool: r.ID(), Path: a.DownloadPath}
	}

	installDir := r.InstallDir()
	if err := os.MkdirAll(filepath.Dir(installDir), 0o755); err != nil {
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	staging, err := os.MkdirTemp(filepath.Dir(installDir), "."+filepath.Base(installDir)+"-*")
	if err != nil {
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(staging))
	}()

	slogcontext.FromCtx(ctx).DebugContext(ctx, "attempting to install tool", "tool", r.ID(), "download", a.DownloadPath, "path", installDir)

	unpacked, err := archive.Unpack(a.DownloadPath, staging, a.ArchivePrefix)
	if err != nil {
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	if !unpacked {
		if err := p.placeBinary(ctx, r, a.DownloadPath, staging); err != nil {
			return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
		}
	}

	if err := os.Chmod(staging, 0o755); err != nil {
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	if err := os.Rename(staging, installDir); err != nil {
		if r.IsInstalled() {
			return false, nil
		}
		return false, &StepError{Tool: r.ID(), Step: "install", Err: err}
	}
	return true, nil
}

// placeBinary moves a standalone executable into dir under its located name.
func (p *Pipeline) placeBinary(ctx context.Context, r *tool.Resolved, src, dir string) error {
	name, err := p.binPath(ctx, r)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dest, err)
	}
	return os.Chmod(dest, 0o755)
}

// binPath is the executable of r relative to its install directory.
func (p *Pipeline) binPath(ctx context.Context, r *tool.Resolved) (string, error) {
	out, err := plugin.Call[v1.LocateBinsInput, v1.LocateBinsOutput](ctx, r.Plugin(), v1.LocateBins, v1.LocateBinsInput{Env: r.Env()})
	if err != nil {
		return "", err
	}
	if out.BinPath != "" {
		if !filepath.IsLocal(filepath.FromSlash(out.BinPath)) {
			return "", &UnsafePathError{Tool: r.ID(), Field: "bin path", Path: out.BinPath}
		}
		return out.BinPath, nil
	}
	return tool.ExeName(r.ID(), r.Env().OS), nil
}

// Uninstall removes the install directory of r. It reports false if r was not installed.
func (p *Pipeline) Uninstall(ctx context.Context, r *tool.Resolved) (bool, error) {
	logger := slogcontext.FromCtx(ctx).With("tool", r.ID(), "version", r.Version())

	if !r.IsInstalled() {
		logger.DebugContext(ctx, "tool has not been installed, aborting")
		return false, nil
	}

	if r.Plugin().Implements(v1.Uninstall) {
		if _, err := plugin.Call[v1.UninstallInput, v1.UninstallOutput](ctx, r.Plugin(), v1.Uninstall, v1.UninstallInput{
			InstallDir: r.InstallDir(),
			Env:        r.Env(),
		}); err != nil {
			return false, err
		}
	}

	logger.DebugContext(ctx, "deleting install directory", "path", r.InstallDir())
	if err := os.RemoveAll(r.InstallDir()); err != nil {
		return false, &StepError{Tool: r.ID(), Step: "uninstall", Err: err}
	}
	if err := p.record(ctx, r, func(m *manifest.Manifest) { m.RemoveInstalled(r.Version()) }); err != nil {
		return false, err
	}

	logger.DebugContext(ctx, "successfully uninstalled tool")
	return true, nil
}

// CreateShims writes the global and local shims of r and returns their paths. Tools
// executed from PATH have no shims.
func (p *Pipeline) CreateShims(ctx context.Context, r *tool.Resolved) ([]string, error) {
	if r.Tool().Type == v1.TypeExecutableOnPath {
		return nil, nil
	}

	bin, err := p.binPath(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := plugin.Call[v1.CreateShimsInput, v1.CreateShimsOutput](ctx, r.Plugin(), v1.CreateShims, v1.CreateShimsInput{Env: r.Env()})
	if err != nil {
		return nil, err
	}

	shims, err := shim.Plan(r.ID(), r.Version(), r.InstallDir(), bin, out)
	if err != nil {
		return nil, &StepError{Tool: r.ID(), Step: "shims", Err: err}
	}

	paths := make([]string, 0, len(shims))
	for _, s := range shims {
		dir := p.binDir
		if s.Kind == shim.Local {
			dir = r.LocalShimDir()
		}
		written, err := p.shims.Write(dir, s)
		if err != nil {
			return nil, &StepError{Tool: r.ID(), Step: "shims", Err: err}
		}
		slogcontext.FromCtx(ctx).DebugContext(ctx, "created shim", "tool", r.ID(), "shim", s.Name, "kind", s.Kind.String(), "path", written)
		paths = append(paths, written)
	}
	return paths, nil
}

func (p *Pipeline) record(ctx context.Context, r *tool.Resolved, fn func(m *manifest.Manifest)) error {
	if _, err := manifest.Update(ctx, r.Tool().ManifestFile(), func(m *manifest.Manifest) error {
		fn(m)
		return nil
	}); err != nil {
		return &StepError{Tool: r.ID(), Step: "manifest", Err: err}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
