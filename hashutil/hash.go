// Package hashutil implements the canonical block hash and proof-of-work
// token computation described in SPEC_FULL.md §4.1/§4.2, grounded on
// original_source/src/blockchain/{block,pow}.rs.
package hashutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
)

// Size is the length in bytes of every hash/token/difficulty value in
// slchain: a raw SHA-256 digest.
const Size = sha256.Size

// Hash returns the raw SHA-256 digest of data.
func Hash(data []byte) [Size]byte {
	return sha256.Sum256(data)
}

// HashB64 returns the base64 encoding of Hash(data), matching the
// block-hash convention in original_source ("base64(sha256(json))").
func HashB64(data []byte) string {
	h := Hash(data)
	return base64.StdEncoding.EncodeToString(h[:])
}

// DecodeB64 decodes a base64-encoded hash back into raw bytes.
func DecodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// PowToken computes SHA-256(previousBlockHash || big_endian_u64(nonce)),
// the proof-of-work search target defined in SPEC_FULL.md §4.2. Note this
// token intentionally does not cover records, timestamp, validation
// sidelinks, or difficulty.
func PowToken(previousBlockHash []byte, nonce uint64) [Size]byte {
	buf := make([]byte, len(previousBlockHash)+8)
	copy(buf, previousBlockHash)
	binary.BigEndian.PutUint64(buf[len(previousBlockHash):], nonce)
	return sha256.Sum256(buf)
}

// MeetsTarget reports whether token is numerically < target when compared
// as big-endian byte strings of equal length.
func MeetsTarget(token, target []byte) bool {
	if len(token) != len(target) {
		return false
	}
	for i := range token {
		if token[i] < target[i] {
			return true
		}
		if token[i] > target[i] {
			return false
		}
	}
	return false
}

// ZeroHash returns a Size-byte slice of zeroes, used as the genesis block's
// PreviousBlockHash. As a difficulty target it can never be met.
func ZeroHash() []byte {
	return make([]byte, Size)
}
