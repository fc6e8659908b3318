package node

import (
	"bytes"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
)

// ChooseLongestChain picks the winner between local and remote: the longer
// chain wins; on a tie, the chain whose tip hash, base64-decoded, is
// lexicographically smaller wins. Matches
// original_source/src/blockchain/chain.rs::find_longest_chain.
//
// Returns true if remote should replace local.
func ChooseLongestChain(local, remote []model.Block) (replaceLocal bool, err error) {
	if len(remote) == 0 {
		return false, nil
	}
	if len(local) == 0 {
		return true, nil
	}
	if len(remote) > len(local) {
		return true, nil
	}
	if len(remote) < len(local) {
		return false, nil
	}

	localTipHash, err := local[len(local)-1].Hash()
	if err != nil {
		return false, err
	}
	remoteTipHash, err := remote[len(remote)-1].Hash()
	if err != nil {
		return false, err
	}

	localDecoded, err := hashutil.DecodeB64(localTipHash)
	if err != nil {
		return false, err
	}
	remoteDecoded, err := hashutil.DecodeB64(remoteTipHash)
	if err != nil {
		return false, err
	}

	return bytes.Compare(remoteDecoded, localDecoded) < 0, nil
}
