// Package hashutil computes the content digest used to identify ebook files
// independent of their path, for deduplication and self-healing ingest.
//
// SHA-256 is used directly from the standard library, the same choice
// kobold's teacher makes for its own content digests (see
// pkg/synchronization's digest algorithms) — there's no ecosystem hashing
// library that improves on crypto/sha256 for a one-shot file digest.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FileHash computes the hex-encoded SHA-256 digest of the file at path.
func FileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
