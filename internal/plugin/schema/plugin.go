package schema

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/mmiszy/proto/internal/plugin"
	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// PluginVersion is reported by register_tool for schema plugins.
const PluginVersion = "schema"

const defaultVersionPattern = `^v?(\d+\.\d+\.\d+.*)$`

// Host is the part of the host capability set schema plugins act through.
type Host interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
	ExecCommand(ctx context.Context, input v1.ExecCommandInput) (v1.ExecCommandOutput, error)
}

// New builds a plugin for tool id from s.
func New(id string, s *Schema, host Host) (*plugin.Native, error) {
	pattern, err := s.versionPattern()
	if err != nil {
		return nil, err
	}
	t := &schemaTool{id: id, schema: s, host: host, pattern: pattern}

	handlers := map[v1.Capability]plugin.Handler{
		v1.RegisterTool:     plugin.Handle(t.register),
		v1.DownloadPrebuilt: plugin.Handle(t.downloadPrebuilt),
		v1.LocateBins:       plugin.Handle(t.locateBins),
		v1.LoadVersions:     plugin.Handle(t.loadVersions),
		v1.CreateShims:      plugin.Handle(t.createShims),
	}
	if len(s.Detect.VersionFiles) > 0 {
		handlers[v1.DetectVersionFiles] = plugin.Handle(t.detectVersionFiles)
	}
	return plugin.NewNative(id, handlers), nil
}

// Load reads the schema at path and builds a plugin for tool id from it.
func Load(id, path string, host Host) (*plugin.Native, error) {
	s, err := Read(path)
	if err != nil {
		return nil, err
	}
	return New(id, s, host)
}

func (s *Schema) versionPattern() (*regexp.Regexp, error) {
	expr := s.Resolve.VersionPattern
	if expr == "" {
		expr = defaultVersionPattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid resolve.version-pattern: %w", err)
	}
	return re, nil
}

type schemaTool struct {
	id      string
	schema  *Schema
	host    Host
	pattern *regexp.Regexp
}

func (t *schemaTool) register(context.Context, v1.RegisterToolInput) (v1.RegisterToolOutput, error) {
	typ := t.schema.Type
	if typ == "" {
		typ = v1.TypeNative
	}
	return v1.RegisterToolOutput{Name: t.schema.Name, TypeOf: typ, PluginVersion: PluginVersion}, nil
}

func (t *schemaTool) detectVersionFiles(context.Context, v1.Empty) (v1.DetectVersionOutput, error) {
	return v1.DetectVersionOutput{Files: t.schema.Detect.VersionFiles}, nil
}

func (t *schemaTool) platform(env v1.Environment) (PlatformMapper, error) {
	p, ok := t.schema.Platform[string(env.OS)]
	if !ok {
		return PlatformMapper{}, fmt.Errorf("%s does not support %s", t.schema.Name, env.OS)
	}
	return p, nil
}

func (t *schemaTool) replacer(env v1.Environment, p PlatformMapper) *strings.Replacer {
	arch := string(env.Arch)
	if mapped, ok := t.schema.Install.Arch[arch]; ok {
		arch = mapped
	}
	vars := []string{"{version}", env.Version, "{arch}", arch, "{os}", string(env.OS)}

	expand := strings.NewReplacer(vars...)
	vars = append(vars,
		"{download_file}", expand.Replace(p.DownloadFile),
		"{checksum_file}", expand.Replace(p.ChecksumFile),
	)
	return strings.NewReplacer(vars...)
}

func (t *schemaTool) downloadPrebuilt(_ context.Context, in v1.DownloadPrebuiltInput) (v1.DownloadPrebuiltOutput, error) {
	p, err := t.platform(in.Env)
	if err != nil {
		return v1.DownloadPrebuiltOutput{}, err
	}
	r := t.replacer(in.Env, p)

	out := v1.DownloadPrebuiltOutput{
		DownloadURL:   r.Replace(t.schema.Install.DownloadURL),
		DownloadName:  r.Replace(p.DownloadFile),
		ArchivePrefix: r.Replace(p.ArchivePrefix),
	}
	if t.schema.Install.ChecksumURL != "" {
		out.ChecksumURL = r.Replace(t.schema.Install.ChecksumURL)
		out.ChecksumName = r.Replace(p.ChecksumFile)
	}
	return out, nil
}

func (t *schemaTool) locateBins(_ context.Context, in v1.LocateBinsInput) (v1.LocateBinsOutput, error) {
	p, err := t.platform(in.Env)
	if err != nil {
		return v1.LocateBinsOutput{}, err
	}
	return v1.LocateBinsOutput{BinPath: t.replacer(in.Env, p).Replace(p.BinPath)}, nil
}

func (t *schemaTool) createShims(context.Context, v1.CreateShimsInput) (v1.CreateShimsOutput, error) {
	out := v1.CreateShimsOutput{NoPrimaryGlobal: t.schema.Shims.NoPrimaryGlobal}
	if len(t.schema.Shims.Global) > 0 {
		out.GlobalShims = make(map[string]v1.ShimConfig, len(t.schema.Shims.Global))
		for name, bin := range t.schema.Shims.Global {
			out.GlobalShims[name] = v1.ShimConfig{BinPath: bin}
		}
	}
	if len(t.schema.Shims.Local) > 0 {
		out.LocalShims = make(map[string]v1.ShimConfig, len(t.schema.Shims.Local))
		for name, bin := range t.schema.Shims.Local {
			out.LocalShims[name] = v1.ShimConfig{BinPath: bin}
		}
	}
	return out, nil
}

func (t *schemaTool) loadVersions(ctx context.Context, _ v1.LoadVersionsInput) (v1.LoadVersionsOutput, error) {
	var (
		raw []string
		err error
	)
	switch {
	case t.schema.Resolve.GitURL != "":
		raw, err = t.gitTags(ctx)
	case t.schema.Resolve.ManifestURL != "":
		raw, err = t.manifestVersions(ctx)
	}
	if err != nil {
		return v1.LoadVersionsOutput{}, err
	}

	out := v1.LoadVersionsOutput{Aliases: t.schema.Resolve.Aliases}
	for _, candidate := range raw {
		match := t.pattern.FindStringSubmatch(strings.TrimSpace(candidate))
		if match == nil {
			continue
		}
		version := match[0]
		if len(match) > 1 {
			version = match[1]
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		out.Versions = append(out.Versions, v.String())
	}
	return out, nil
}

func (t *schemaTool) gitTags(ctx context.Context) ([]string, error) {
	res, err := t.host.ExecCommand(ctx, v1.ExecCommandInput{
		Command: "git",
		Args:    []string{"ls-remote", "--tags", "--refs", t.schema.Resolve.GitURL},
	})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git ls-remote %s exited with %d: %s", t.schema.Resolve.GitURL, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	var tags []string
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if tag, ok := strings.CutPrefix(fields[1], "refs/tags/"); ok {
			tags = append(tags, tag)
		}
	}
	return tags, scanner.Err()
}

func (t *schemaTool) manifestVersions(ctx context.Context) ([]string, error) {
	data, err := t.host.FetchURL(ctx, t.schema.Resolve.ManifestURL)
	if err != nil {
		return nil, err
	}

	path := t.schema.Resolve.ManifestVersionPath
	if path == "" {
		path = "@this"
	}
	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, fmt.Errorf("%s has no value at %q", t.schema.Resolve.ManifestURL, path)
	}

	var versions []string
	collect := func(v gjson.Result) {
		if v.Type == gjson.String {
			versions = append(versions, v.String())
		}
	}
	if result.IsArray() {
		result.ForEach(func(_, v gjson.Result) bool {
			collect(v)
			return true
		})
	} else {
		collect(result)
	}
	return versions, nil
}
