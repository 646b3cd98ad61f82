package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
	tarfs "github.com/nlepage/go-tarfs"
)

// ExtractFile copies a single entry out of the archive at input into dest.
// Entries are matched by suffix; an entry whose base name equals preferred wins,
// otherwise the lexically first match is taken. The matched entry name is returned.
func ExtractFile(input, dest, suffix, preferred string) (_ string, err error) {
	format, err := detectWrapped(input)
	if err != nil {
		return "", err
	}
	if format == FormatNone {
		return "", &UnsupportedFormatError{Path: input, Ext: filepath.Ext(input)}
	}

	var (
		names []string
		open  func(name string) (io.ReadCloser, error)
	)
	switch format {
	case FormatZip:
		var reader *zip.ReadCloser
		if reader, err = zip.OpenReader(input); err != nil {
			return "", &ReadError{Path: input, Err: err}
		}
		defer func() {
			err = errors.Join(err, reader.Close())
		}()
		files := make(map[string]*zip.File, len(reader.File))
		for _, f := range reader.File {
			if f.Mode().IsRegular() {
				name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
				files[name] = f
				names = append(names, name)
			}
		}
		open = func(name string) (io.ReadCloser, error) { return files[name].Open() }
	default:
		var file *os.File
		if file, err = os.Open(input); err != nil {
			return "", &ReadError{Path: input, Err: err}
		}
		defer func() {
			err = errors.Join(err, file.Close())
		}()
		var (
			r       io.Reader
			closeFn func() error
		)
		if r, closeFn, err = decompress(file, format); err != nil {
			return "", &ReadError{Path: input, Err: err}
		}
		defer func() {
			err = errors.Join(err, closeFn())
		}()
		var fsys fs.FS
		if fsys, err = tarfs.New(r); err != nil {
			return "", &ReadError{Path: input, Err: err}
		}
		if names, err = walk(fsys); err != nil {
			return "", &ReadError{Path: input, Err: err}
		}
		open = func(name string) (io.ReadCloser, error) { return fsys.Open(name) }
	}

	name, err := pick(names, suffix, preferred)
	if err != nil {
		return "", fmt.Errorf("%w: %s in %s", err, suffix, input)
	}
	if err := copyEntry(open, name, dest); err != nil {
		return "", err
	}
	return name, nil
}

func detectWrapped(input string) (Format, error) {
	lower := strings.ToLower(input)
	if strings.HasSuffix(lower, ".tar") {
		return FormatTar, nil
	}
	return DetectFormat(input)
}

func walk(fsys fs.FS) ([]string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			names = append(names, p)
		}
		return nil
	})
	return names, err
}

func pick(names []string, suffix, preferred string) (string, error) {
	var matches []string
	for _, name := range names {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", ErrNoMatch
	}
	slices.Sort(matches)
	for _, m := range matches {
		if preferred != "" && path.Base(m) == preferred {
			return m, nil
		}
	}
	return matches[0], nil
}

func copyEntry(open func(string) (io.ReadCloser, error), name, dest string) (err error) {
	src, err := open(name)
	if err != nil {
		return &ReadError{Path: name, Err: err}
	}
	defer func() {
		err = errors.Join(err, src.Close())
	}()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	if _, err := io.Copy(out, src); err != nil {
		return errors.Join(&WriteError{Path: dest, Err: err}, out.Close(), os.Remove(tmp))
	}
	if err := out.Close(); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	return nil
}
