package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns hex encoded sha256 checksum of data
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumReader consumes r and returns hex encoded sha256 checksum
// alongside number of bytes read
func SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NewHash returns hash used for chunk checksums
func NewHash() hash.Hash {
	return sha256.New()
}

// Encode returns hex encoded digest of h
func Encode(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
