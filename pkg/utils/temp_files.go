// Package utils holds small filesystem helpers shared across navcore.
package utils

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// SecureTempFile creates a temp file in dir (or the system temp directory
// when dir is empty) with a random suffix and owner-only permissions, for
// write-to-temp-then-rename persistence. Trimmed from a larger
// secure-scratch-space helper (which also created temp directories and
// cleaned them back up) down to the one operation the snapshot writer
// needs: a single named file it can rename into place.
func SecureTempFile(dir, pattern string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("generate random suffix: %w", err)
	}

	filename := fmt.Sprintf("%s-%x.tmp", pattern, randomBytes)
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create secure temp file: %w", err)
	}
	return file, nil
}
