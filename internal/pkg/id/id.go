package id

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strconv"

	"github.com/google/uuid"
)

func RevisionID() string { return uuid.New().String() }

// CredentialDigest returns a fast, non-cryptographic digest of a raw bearer
// credential, suitable only as a cache key. It is never stored durably and
// never used as a security boundary.
func CredentialDigest(credential string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(credential))
	return strconv.FormatUint(h.Sum64(), 16)
}

// UserHash anonymizes a stable subject identifier for analytics and admin
// listings. Truncated SHA-256 keeps records content-free while remaining
// stable across days.
func UserHash(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}
