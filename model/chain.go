package model

// Chain is a contiguous, ordered sequence of blocks starting at the genesis
// block. Chain itself carries no storage behavior — persistence lives in
// package store; Chain is the in-memory shape validation and fork choice
// operate over.
type Chain struct {
	Blocks []Block
}

// Len returns the number of blocks in the chain.
func (c Chain) Len() int {
	return len(c.Blocks)
}

// Tip returns the last block of the chain and true, or the zero Block and
// false if the chain is empty.
func (c Chain) Tip() (Block, bool) {
	if len(c.Blocks) == 0 {
		return Block{}, false
	}
	return c.Blocks[len(c.Blocks)-1], true
}

// BuildSidelinks computes the ValidationSidelinks field for a new block at
// height newBlockHeight given the chain built so far and the previous
// block's hash, per SPEC_FULL.md §4.3. It returns the base64 hashes of the
// sidelinked blocks in the order DeriveSidelinkIndices returns their
// heights.
func (c Chain) BuildSidelinks(previousBlockHash []byte, newBlockHeight uint64, numSidelinks uint64) ([]string, error) {
	indices := DeriveSidelinkIndices(previousBlockHash, newBlockHeight, numSidelinks)
	hashes := make([]string, 0, len(indices))
	for _, idx := range indices {
		// idx is 1-indexed height; c.Blocks is 0-indexed by position.
		if idx < 1 || int(idx) > len(c.Blocks) {
			continue
		}
		h, err := c.Blocks[idx-1].Hash()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}
