package model

import (
	"encoding/base64"
	"encoding/binary"
	"strconv"

	"github.com/brackwater-labs/slchain/hashutil"
)

// DeriveSidelinkIndices computes which earlier block heights (1-indexed)
// the block at height newBlockHeight should sidelink to, given the hash of
// the immediately preceding block and the configured sidelink count k. This
// is bit-for-bit the algorithm in
// original_source/src/blockchain/block.rs::derive_sidelink_indices.
//
// Candidates are 1..=newBlockHeight-2 (empty when newBlockHeight <= 2). If
// k <= len(candidates), 2k swaps are performed: swap i draws two indices
// into candidates, seeded by SHA256(ascii(P) || ascii(decimal(i))) and
// SHA256(ascii(P) || ascii(decimal(i)) || ascii(decimal(i))), where P is the
// base64 encoding of previousBlockHash, and swaps those two positions
// directly. The last k elements of the result are returned. Otherwise all
// candidates are returned unshuffled.
func DeriveSidelinkIndices(previousBlockHash []byte, newBlockHeight uint64, k uint64) []uint64 {
	if newBlockHeight < 3 {
		return []uint64{}
	}

	numCandidates := newBlockHeight - 2
	candidates := make([]uint64, numCandidates)
	for i := range candidates {
		candidates[i] = uint64(i) + 1
	}

	if k > numCandidates {
		return candidates
	}

	p := base64.StdEncoding.EncodeToString(previousBlockHash)
	numberOfSwaps := k * 2
	for i := uint64(0); i < numberOfSwaps; i++ {
		decimal := strconv.FormatUint(i, 10)

		idx1 := seededIndex(p+decimal, numCandidates)
		idx2 := seededIndex(p+decimal+decimal, numCandidates)
		candidates[idx1], candidates[idx2] = candidates[idx2], candidates[idx1]
	}

	return candidates[numCandidates-k:]
}

// seededIndex returns SHA256(ascii(input)) mod modulus, interpreting the
// last 8 bytes of the digest (hash_bytes[24..32]) as a big-endian uint64.
func seededIndex(input string, modulus uint64) uint64 {
	if modulus == 0 {
		return 0
	}
	digest := hashutil.Hash([]byte(input))
	return binary.BigEndian.Uint64(digest[24:32]) % modulus
}
