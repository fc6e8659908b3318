package shell

import (
	"time"

	"github.com/brackwater-labs/slchain/hashutil"
)

// EstimateHashrate runs a short unconstrained PoW search against an
// all-zero previous hash for roughly duration, returning an approximate
// hashes-per-second figure. Recovered from original_source/src/main.rs's
// startup hashrate probe; advisory only (SPEC_FULL.md §6.2).
func EstimateHashrate(duration time.Duration) float64 {
	prevHash := hashutil.ZeroHash()
	deadline := time.Now().Add(duration)

	var nonce uint64
	start := time.Now()
	for time.Now().Before(deadline) {
		hashutil.PowToken(prevHash, nonce)
		nonce++
	}
	elapsed := time.Since(start).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(nonce) / elapsed
}
