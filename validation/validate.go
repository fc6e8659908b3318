// Package validation implements the ChainValidator described in
// SPEC_FULL.md §4.5, grounded on original_source/src/blockchain/chain.rs's
// validate_block/validate_chain.
package validation

import (
	"bytes"

	"github.com/brackwater-labs/slchain/errors"
	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
)

// ValidateBlock checks candidate against prev: genesis shape (when
// candidate.Idx is 1; prev is then not consulted), previous-hash linkage, sidelink count/hash agreement, and proof of work.
// chain holds every block from genesis up to (but not including) candidate,
// needed to recompute expected sidelink hashes.
func ValidateBlock(chain model.Chain, prev model.Block, candidate model.Block) error {
	if candidate.Idx == 1 {
		if !candidate.IsGenesis() {
			return errors.NewValidation(errors.ValidationKindBadGenesis, "genesis block has unexpected shape", nil)
		}
		return nil
	}

	if candidate.Idx != prev.Idx+1 {
		return errors.NewValidation(errors.ValidationKindIDGap, "block index does not follow previous block", nil)
	}

	prevHash, err := prev.Hash()
	if err != nil {
		return errors.New(errors.CodeSerialization, "hash previous block", err)
	}
	decodedPrevHash, err := hashutil.DecodeB64(prevHash)
	if err != nil {
		return errors.New(errors.CodeSerialization, "decode previous block hash", err)
	}
	if !bytes.Equal(decodedPrevHash, candidate.PreviousBlockHash) {
		return errors.NewValidation(errors.ValidationKindPrevHashMismatch, "previous_block_hash does not match predecessor", nil)
	}

	expectedIndices := model.DeriveSidelinkIndices(candidate.PreviousBlockHash, candidate.Idx, candidate.NumSidelinks)
	if uint64(len(candidate.ValidationSidelinks)) != uint64(len(expectedIndices)) {
		return errors.NewValidation(errors.ValidationKindSidelinkCountMismatch, "validation_sidelinks length does not match derived sidelink count", nil)
	}

	expectedHashes, err := chain.BuildSidelinks(candidate.PreviousBlockHash, candidate.Idx, candidate.NumSidelinks)
	if err != nil {
		return errors.New(errors.CodeSerialization, "recompute expected sidelink hashes", err)
	}
	if len(expectedHashes) != len(candidate.ValidationSidelinks) {
		return errors.NewValidation(errors.ValidationKindSidelinkHashMismatch, "could not recompute expected sidelinks against local chain", nil)
	}
	for i, h := range expectedHashes {
		if h != candidate.ValidationSidelinks[i] {
			return errors.NewValidation(errors.ValidationKindSidelinkHashMismatch, "validation_sidelinks does not match recomputed hashes", nil)
		}
	}

	token := hashutil.PowToken(candidate.PreviousBlockHash, candidate.Pow)
	if !hashutil.MeetsTarget(token[:], candidate.Difficulty) {
		return errors.NewValidation(errors.ValidationKindPowBelowTarget, "proof of work does not meet difficulty target", nil)
	}

	return nil
}

// ValidateChain walks blocks from genesis, applying ValidateBlock pairwise.
func ValidateChain(blocks []model.Block) error {
	if len(blocks) == 0 {
		return errors.NewValidation(errors.ValidationKindBadGenesis, "chain has no blocks", nil)
	}

	built := model.Chain{}
	for i, b := range blocks {
		var prev model.Block
		if i > 0 {
			prev = blocks[i-1]
		}
		if err := ValidateBlock(built, prev, b); err != nil {
			return err
		}
		built.Blocks = append(built.Blocks, b)
	}
	return nil
}
