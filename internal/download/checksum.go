package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileSHA256 streams path through SHA-256 and returns the lowercase hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile compares the digest of path with expected, case-insensitively.
// A mismatch returns a *ChecksumError.
func VerifyFile(path, expected string) error {
	actual, err := FileSHA256(path)
	if err != nil {
		return err
	}
	want := strings.ToLower(strings.TrimSpace(expected))
	if actual != want {
		return &ChecksumError{Expected: want, Actual: actual}
	}
	return nil
}
