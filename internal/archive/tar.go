package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

func (x *extractor) untar(format Format) (err error) {
	file, err := os.Open(x.input)
	if err != nil {
		return &ReadError{Path: x.input, Err: err}
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	reader, closeFn, err := decompress(file, format)
	if err != nil {
		return &ReadError{Path: x.input, Err: err}
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ReadError{Path: x.input, Err: err}
		}
		if err := x.writeTarEntry(tr, header); err != nil {
			return err
		}
	}
}

// decompress wraps r according to the tar flavour of format.
func decompress(r io.Reader, format Format) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	switch format {
	case FormatTarGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create gzip reader: %w", err)
		}
		return gz, gz.Close, nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create xz reader: %w", err)
		}
		return xr, noop, nil
	case FormatTar:
		return r, noop, nil
	default:
		return nil, nil, fmt.Errorf("format %d is not a tar format", format)
	}
}

func (x *extractor) writeTarEntry(tr *tar.Reader, header *tar.Header) error {
	dest, ok := x.target(header.Name)
	if !ok {
		return nil
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
	case tar.TypeReg:
		if err := x.writeFile(dest, tr, header.FileInfo().Mode().Perm()); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
	case tar.TypeSymlink:
		if !x.linkTarget(dest, header.Linkname) {
			return nil
		}
		if err := symlink(header.Linkname, dest); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
	case tar.TypeLink:
		source, ok := x.target(header.Linkname)
		if !ok {
			return nil
		}
		if err := hardlink(source, dest); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
	}
	return nil
}

func (x *extractor) writeFile(dest string, r io.Reader, perm os.FileMode) (err error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	if _, err := io.CopyBuffer(file, r, x.buf); err != nil {
		return err
	}
	// the umask may have dropped bits from the requested mode
	return file.Chmod(perm)
}

func symlink(linkname, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Symlink(filepath.FromSlash(linkname), dest)
}

func hardlink(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Link(source, dest)
}
