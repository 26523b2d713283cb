package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/and161185/pkg-registry/internal/semver"
)

// ---- tarball helpers ----

const tarballExt = ".tar.gz"

var errNotGzip = errors.New("tarball is not gzip compressed")

// readAll reads a file, or stdin for "-".
func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

// checkGzip rejects data without the gzip magic bytes.
func checkGzip(data []byte) error {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return errNotGzip
	}
	return nil
}

// splitTarballName extracts name and version from "<name>-<version>.tar.gz".
// The version starts after the first dash whose remainder parses as a version,
// so dashed names and pre-release suffixes both work.
func splitTarballName(path string) (name, version string, ok bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, tarballExt) {
		return "", "", false
	}
	base = strings.TrimSuffix(base, tarballExt)
	for i := 1; i < len(base)-1; i++ {
		if base[i] == '-' && semver.Valid(base[i+1:]) {
			return base[:i], base[i+1:], true
		}
	}
	return "", "", false
}
