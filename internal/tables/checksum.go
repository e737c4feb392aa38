package tables

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum returns "sha256:<hex>" over data. Result objects carry it so
// readers can detect a truncated or replaced export.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) bool {
	return ComputeChecksum(data) == expected
}
