// Package archive unpacks downloaded tool artifacts.
//
// The format is chosen from the file extension alone:
//
//	.zip          zip
//	.tgz, .gz     gzip compressed tar
//	.txz, .xz     xz compressed tar
//	.exe, none    not an archive
//
// Entries can be re-rooted by stripping a leading path component, which flattens
// archives that nest their content under a versioned top-level folder.
package archive

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Format identifies how an input file is unpacked.
type Format int

const (
	// FormatNone marks a standalone file that is copied rather than unpacked.
	FormatNone Format = iota
	FormatZip
	FormatTarGzip
	FormatTarXz
	// FormatTar is only accepted when locating files in wrapped plugin archives.
	FormatTar
)

const copyBufferSize = 32 * 1024

// DetectFormat maps the extension of path to a Format.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case "", ".exe":
		return FormatNone, nil
	case ".zip":
		return FormatZip, nil
	case ".tgz", ".gz":
		return FormatTarGzip, nil
	case ".txz", ".xz":
		return FormatTarXz, nil
	default:
		return FormatNone, &UnsupportedFormatError{Path: path, Ext: ext}
	}
}

// IsArchive reports whether path would be unpacked by Unpack.
func IsArchive(path string) bool {
	format, err := DetectFormat(path)
	return err == nil && format != FormatNone
}

// Unpack extracts input into output, creating output if needed.
// It returns false without touching output when input is not an archive.
// If removePrefix is set, it is stripped once from the front of every entry path.
func Unpack(input, output, removePrefix string) (bool, error) {
	format, err := DetectFormat(input)
	if err != nil {
		return false, err
	}
	if format == FormatNone {
		return false, nil
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		return false, &WriteError{Path: output, Err: err}
	}

	x := &extractor{
		input:  input,
		output: output,
		prefix: cleanPrefix(removePrefix),
		buf:    make([]byte, copyBufferSize),
	}

	switch format {
	case FormatZip:
		err = x.unzip()
	default:
		err = x.untar(format)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type extractor struct {
	input  string
	output string
	prefix string
	buf    []byte
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix)
}

// target maps an archive entry name onto the output directory.
// It returns false for entries that escape the output directory or that map onto it.
func (x *extractor) target(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", false
	}
	name = path.Clean(name)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", false
	}

	if x.prefix != "" {
		if name == x.prefix {
			return "", false
		}
		name = strings.TrimPrefix(name, x.prefix+"/")
	}

	dest := filepath.Join(x.output, filepath.FromSlash(name))
	if !within(x.output, dest) {
		return "", false
	}
	return dest, true
}

// linkTarget validates a symlink target relative to the link location.
func (x *extractor) linkTarget(dest, linkname string) bool {
	if linkname == "" || filepath.IsAbs(linkname) || path.IsAbs(linkname) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(dest), filepath.FromSlash(linkname))
	return within(x.output, resolved)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
