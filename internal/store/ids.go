package store

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// RepositoryID derives the stable identifier for a repository root: a hex
// digest of its absolute path, truncated to 16 hex characters.
func RepositoryID(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16], nil
}
