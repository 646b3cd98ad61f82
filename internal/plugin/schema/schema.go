// Package schema turns declarative tool definitions into plugins.
//
// A definition is a TOML, JSON or YAML document describing where a tool is downloaded
// from per platform, how its versions are listed and which files pin a version:
//
//	name = "Deno"
//
//	[platform.linux]
//	download-file = "deno-{arch}-unknown-linux-gnu.zip"
//	checksum-file = "deno-{arch}-unknown-linux-gnu.zip.sha256sum"
//	bin-path = "deno"
//
//	[install]
//	download-url = "https://github.com/denoland/deno/releases/download/v{version}/{download_file}"
//	checksum-url = "https://github.com/denoland/deno/releases/download/v{version}/{checksum_file}"
//
//	[install.arch]
//	x64 = "x86_64"
//	arm64 = "aarch64"
//
//	[resolve]
//	git-url = "https://github.com/denoland/deno"
//
// Templates accept {version}, {arch}, {os}, {download_file} and {checksum_file}.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"sigs.k8s.io/yaml"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// ErrInvalidSchema is returned for definitions missing required fields.
var ErrInvalidSchema = errors.New("invalid plugin schema")

// Extensions lists the file extensions a schema can be read from.
var Extensions = []string{".toml", ".json", ".yaml", ".yml"}

type Schema struct {
	Name     string                    `json:"name" toml:"name"`
	Type     v1.ToolType               `json:"type,omitempty" toml:"type,omitempty"`
	Platform map[string]PlatformMapper `json:"platform" toml:"platform"`
	Install  InstallSchema             `json:"install" toml:"install"`
	Resolve  ResolveSchema             `json:"resolve,omitempty" toml:"resolve,omitempty"`
	Detect   DetectSchema              `json:"detect,omitempty" toml:"detect,omitempty"`
	Shims    ShimsSchema               `json:"shims,omitempty" toml:"shims,omitempty"`
}

// PlatformMapper holds the per operating system file names of a tool.
type PlatformMapper struct {
	ArchivePrefix string `json:"archive-prefix,omitempty" toml:"archive-prefix,omitempty"`
	BinPath       string `json:"bin-path,omitempty" toml:"bin-path,omitempty"`
	ChecksumFile  string `json:"checksum-file,omitempty" toml:"checksum-file,omitempty"`
	DownloadFile  string `json:"download-file" toml:"download-file"`
}

type InstallSchema struct {
	// Arch maps host architectures to the names used in download files.
	Arch        map[string]string `json:"arch,omitempty" toml:"arch,omitempty"`
	ChecksumURL string            `json:"checksum-url,omitempty" toml:"checksum-url,omitempty"`
	DownloadURL string            `json:"download-url" toml:"download-url"`
}

// ResolveSchema lists versions either from the tags of a git repository or from a JSON
// document, where ManifestVersionPath is a gjson path selecting the version strings.
type ResolveSchema struct {
	GitURL              string            `json:"git-url,omitempty" toml:"git-url,omitempty"`
	ManifestURL         string            `json:"manifest-url,omitempty" toml:"manifest-url,omitempty"`
	ManifestVersionPath string            `json:"manifest-version-path,omitempty" toml:"manifest-version-path,omitempty"`
	VersionPattern      string            `json:"version-pattern,omitempty" toml:"version-pattern,omitempty"`
	Aliases             map[string]string `json:"aliases,omitempty" toml:"aliases,omitempty"`
}

type DetectSchema struct {
	VersionFiles []string `json:"version-files,omitempty" toml:"version-files,omitempty"`
}

// ShimsSchema maps shim names to bin paths relative to the install directory.
type ShimsSchema struct {
	Global          map[string]string `json:"global,omitempty" toml:"global,omitempty"`
	Local           map[string]string `json:"local,omitempty" toml:"local,omitempty"`
	NoPrimaryGlobal bool              `json:"no-primary-global,omitempty" toml:"no-primary-global,omitempty"`
}

// IsSchemaFile reports whether path has a schema extension.
func IsSchemaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Read parses the schema file at path.
func Read(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plugin schema: %w", err)
	}
	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema in the format named by ext. Unknown fields are rejected.
func Parse(data []byte, ext string) (*Schema, error) {
	var s Schema
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalidSchema, ext)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the fields every schema needs.
func (s *Schema) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch s.Type {
	case "", v1.TypeNative, v1.TypeExecutableOnPath:
	default:
		errs = append(errs, fmt.Errorf("unknown type %q", s.Type))
	}
	if s.Install.DownloadURL == "" {
		errs = append(errs, errors.New("install.download-url is required"))
	}
	if len(s.Platform) == 0 {
		errs = append(errs, errors.New("at least one platform is required"))
	}
	for os, p := range s.Platform {
		if p.DownloadFile == "" {
			errs = append(errs, fmt.Errorf("platform.%s.download-file is required", os))
		}
	}
	if s.Resolve.GitURL != "" && s.Resolve.ManifestURL != "" {
		errs = append(errs, errors.New("resolve.git-url and resolve.manifest-url are exclusive"))
	}
	if _, err := s.versionPattern(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, errors.Join(errs...))
	}
	return nil
}
