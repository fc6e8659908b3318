package node

import (
	"testing"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
	"github.com/stretchr/testify/require"
)

func chainOfLength(t *testing.T, n int) []model.Block {
	t.Helper()
	difficulty := make([]byte, hashutil.Size)
	for i := range difficulty {
		difficulty[i] = 0xff
	}

	blocks := []model.Block{model.Genesis(difficulty, 0)}
	for i := 2; i <= n; i++ {
		prev := blocks[len(blocks)-1]
		prevHash, err := prev.Hash()
		require.NoError(t, err)
		prevHashBytes, err := hashutil.DecodeB64(prevHash)
		require.NoError(t, err)
		blocks = append(blocks, model.Block{
			Idx:                 uint64(i),
			PreviousBlockHash:   prevHashBytes,
			ValidationSidelinks: []string{},
			Pow:                 1,
			Timestamp:           prev.Timestamp + 1,
			Records:             []model.Record{},
			Difficulty:          difficulty,
		})
	}
	return blocks
}

func TestChooseLongestChainPrefersLonger(t *testing.T) {
	local := chainOfLength(t, 3)
	remote := chainOfLength(t, 5)

	replace, err := ChooseLongestChain(local, remote)
	require.NoError(t, err)
	require.True(t, replace)

	replace, err = ChooseLongestChain(remote, local)
	require.NoError(t, err)
	require.False(t, replace)
}

func TestChooseLongestChainEmptyRemoteNeverWins(t *testing.T) {
	local := chainOfLength(t, 3)
	replace, err := ChooseLongestChain(local, nil)
	require.NoError(t, err)
	require.False(t, replace)
}

func TestChooseLongestChainEmptyLocalAlwaysLoses(t *testing.T) {
	remote := chainOfLength(t, 1)
	replace, err := ChooseLongestChain(nil, remote)
	require.NoError(t, err)
	require.True(t, replace)
}

func TestChooseLongestChainTieIsDeterministic(t *testing.T) {
	local := chainOfLength(t, 4)
	remote := chainOfLength(t, 4)

	first, err := ChooseLongestChain(local, remote)
	require.NoError(t, err)
	second, err := ChooseLongestChain(local, remote)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
