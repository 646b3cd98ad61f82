package install

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
)

// encodedAlgorithms maps hex digest lengths to the algorithm producing them.
var encodedAlgorithms = map[int]digest.Algorithm{
	64:  digest.SHA256,
	96:  digest.SHA384,
	128: digest.SHA512,
}

// expectedDigest finds the digest for name in checksum file content. Lines are either a
// bare digest, "<hex>  <name>", "<hex> *<name>" or "<algorithm>:<hex>" forms of both.
// A single bare digest applies to any name.
func expectedDigest(content, name string) (digest.Digest, bool) {
	var bare []digest.Digest
	for line := range strings.Lines(content) {
		fields := strings.Fields(line)
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}
		d, ok := parseDigest(fields[0])
		if !ok {
			continue
		}
		if len(fields) == 1 {
			bare = append(bare, d)
			continue
		}
		file := strings.TrimPrefix(fields[1], "*")
		if file == name || strings.HasSuffix(file, "/"+name) {
			return d, true
		}
	}
	if len(bare) == 1 {
		return bare[0], true
	}
	return "", false
}

// hasDigest reports whether content holds at least one digest line.
func hasDigest(content string) bool {
	for line := range strings.Lines(content) {
		fields := strings.Fields(line)
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}
		if _, ok := parseDigest(fields[0]); ok {
			return true
		}
	}
	return false
}

func parseDigest(s string) (digest.Digest, bool) {
	if strings.Contains(s, ":") {
		d, err := digest.Parse(strings.ToLower(s))
		return d, err == nil
	}
	algo, ok := encodedAlgorithms[len(s)]
	if !ok {
		return "", false
	}
	d := digest.NewDigestFromEncoded(algo, strings.ToLower(s))
	return d, d.Validate() == nil
}

// verifyFile reports whether the file at path matches expected.
func verifyFile(path string, expected digest.Digest) (_ bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	verifier := expected.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return verifier.Verified(), nil
}

// fileSHA256 is the hex sha256 of the file at path.
func fileSHA256(path string) (_ string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d.Encoded(), nil
}
