package archive

import (
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

func (x *extractor) unzip() (err error) {
	reader, err := zip.OpenReader(x.input)
	if err != nil {
		return &ReadError{Path: x.input, Err: err}
	}
	defer func() {
		err = errors.Join(err, reader.Close())
	}()

	for _, f := range reader.File {
		if err := x.writeZipEntry(f); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) writeZipEntry(f *zip.File) (err error) {
	dest, ok := x.target(f.Name)
	if !ok {
		return nil
	}

	mode := f.Mode()
	if mode.IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
		return nil
	}

	rc, err := f.Open()
	if err != nil {
		return &ReadError{Path: x.input, Err: err}
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()

	if mode&os.ModeSymlink != 0 {
		linkname, err := io.ReadAll(rc)
		if err != nil {
			return &ReadError{Path: x.input, Err: err}
		}
		if !x.linkTarget(dest, string(linkname)) {
			return nil
		}
		if err := symlink(string(linkname), dest); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
		return nil
	}

	if err := x.writeFile(dest, rc, mode.Perm()); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	return nil
}
