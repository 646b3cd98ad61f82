// Package download performs single-attempt HTTP transfers.
//
// Files are written next to their destination with a ".part" suffix and renamed into
// place once complete, so a file at the destination path is always a finished transfer.
// Failures are reported as NotFoundError for 404 responses and FailedError otherwise;
// nothing is retried.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	slogcontext "github.com/veqryn/slog-context"
)

// PartSuffix is appended to in-flight downloads.
const PartSuffix = ".part"

// ToFile downloads url to dest, replacing any existing file.
func ToFile(ctx context.Context, client *http.Client, url, dest string) (err error) {
	logger := slogcontext.FromCtx(ctx).With("url", url, "path", dest)
	logger.DebugContext(ctx, "downloading")

	body, err := get(ctx, client, url)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, body.Close())
	}()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("unable to create download directory: %w", err)
	}

	part := dest + PartSuffix
	file, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("unable to create download file: %w", err)
	}
	n, err := io.Copy(file, body)
	if err != nil {
		return errors.Join(&FailedError{URL: url, Err: err}, file.Close(), os.Remove(part))
	}
	if err := file.Close(); err != nil {
		return errors.Join(fmt.Errorf("unable to close download file: %w", err), os.Remove(part))
	}
	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("unable to move download into place: %w", err)
	}

	logger.DebugContext(ctx, "downloaded", "bytes", n)
	return nil
}

// Bytes downloads url into memory.
func Bytes(ctx context.Context, client *http.Client, url string) (_ []byte, err error) {
	body, err := get(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, body.Close())
	}()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FailedError{URL: url, Err: err}
	}
	return data, nil
}

func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FailedError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FailedError{URL: url, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, &NotFoundError{URL: url}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, &FailedError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
