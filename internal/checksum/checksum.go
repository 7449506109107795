// Package checksum computes BLAKE3 digests of mod archives.
package checksum

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// New returns a streaming BLAKE3 hasher.
func New() hash.Hash {
	return blake3.New()
}

// Hex renders a hasher's current digest.
func Hex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// File computes the BLAKE3 hash of the file at path, returning the
// hex-encoded digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return Hex(h), nil
}
