package model

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint returns one BLAKE3 digest over the given files in order. Each
// file's digest is fed to the outer hash so boundaries between files matter.
func Fingerprint(paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("fingerprint: no files")
	}
	outer := blake3.New()
	for _, p := range paths {
		inner := blake3.New()
		if err := hashFile(inner, p); err != nil {
			return "", err
		}
		outer.Write(inner.Sum(nil))
	}
	return hex.EncodeToString(outer.Sum(nil)), nil
}

func hashFile(h *blake3.Hasher, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fingerprint: failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("fingerprint: failed to read %s: %w", path, err)
	}
	return nil
}
