package validation

import (
	"testing"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
	"github.com/stretchr/testify/require"
)

// easiestDifficulty is all-0xff, the largest possible 32-byte target, so any
// PoW token trivially satisfies it; used to keep these tests fast.
func easiestDifficulty() []byte {
	d := make([]byte, hashutil.Size)
	for i := range d {
		d[i] = 0xff
	}
	return d
}

func buildValidChain(t *testing.T, n int, numSidelinks uint64) []model.Block {
	t.Helper()

	difficulty := easiestDifficulty()
	chain := model.Chain{}

	genesis := model.Genesis(difficulty, numSidelinks)
	chain.Blocks = append(chain.Blocks, genesis)

	for i := 2; i <= n; i++ {
		prev := chain.Blocks[len(chain.Blocks)-1]
		prevHash, err := prev.Hash()
		require.NoError(t, err)
		prevHashBytes, err := hashutil.DecodeB64(prevHash)
		require.NoError(t, err)

		sidelinks, err := chain.BuildSidelinks(prevHashBytes, uint64(i), numSidelinks)
		require.NoError(t, err)

		next := model.Block{
			Idx:                 uint64(i),
			PreviousBlockHash:   prevHashBytes,
			ValidationSidelinks: sidelinks,
			NumSidelinks:        numSidelinks,
			Pow:                 1,
			Timestamp:           prev.Timestamp + 1,
			Records:             []model.Record{},
			Difficulty:          difficulty,
		}
		chain.Blocks = append(chain.Blocks, next)
	}

	return chain.Blocks
}

func TestValidateChainAcceptsValidChain(t *testing.T) {
	blocks := buildValidChain(t, 8, 2)
	require.NoError(t, ValidateChain(blocks))
}

func TestValidateChainRejectsBrokenPrevHash(t *testing.T) {
	blocks := buildValidChain(t, 4, 1)
	blocks[2].PreviousBlockHash = hashutil.ZeroHash()
	err := ValidateChain(blocks)
	require.Error(t, err)
}

func TestValidateChainRejectsIdGap(t *testing.T) {
	blocks := buildValidChain(t, 4, 1)
	blocks[2].Idx = 99
	err := ValidateChain(blocks)
	require.Error(t, err)
}

func TestValidateChainRejectsBadSidelinkCount(t *testing.T) {
	blocks := buildValidChain(t, 6, 2)
	blocks[4].ValidationSidelinks = blocks[4].ValidationSidelinks[:0]
	err := ValidateChain(blocks)
	require.Error(t, err)
}

func TestValidateChainRejectsPowBelowTarget(t *testing.T) {
	blocks := buildValidChain(t, 3, 0)
	hardest := make([]byte, hashutil.Size) // all-zero target: no token is strictly less than zero
	blocks[2].Difficulty = hardest
	err := ValidateChain(blocks)
	require.Error(t, err)
}
