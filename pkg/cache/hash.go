package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the full 64-character hex SHA-256 of data. Backends hash
// keys before storage so arbitrary URLs and gem full names are safe keys.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
