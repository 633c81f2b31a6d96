package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashOwnerKey returns a filesystem-safe identifier for an owner key.
func HashOwnerKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashReader returns the hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
