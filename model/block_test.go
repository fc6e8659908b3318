package model

import (
	"testing"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisShape(t *testing.T) {
	g := Genesis(hashutil.ZeroHash(), 2)
	assert.True(t, g.IsGenesis())
	assert.EqualValues(t, 1, g.Idx)
	assert.Empty(t, g.ValidationSidelinks)
	assert.EqualValues(t, 0, g.NumSidelinks)
}

func TestBlockCanonicalEncodingFieldOrder(t *testing.T) {
	b := Genesis(hashutil.ZeroHash(), 0)
	b.AddRecord("hello", "peer-1")

	data, err := b.MarshalJSON()
	require.NoError(t, err)

	want := `{"idx":1,"previous_block_hash":`
	assert.Contains(t, string(data), want)

	// Field order must be exactly this, so that independently running nodes
	// agree on the hash of the same logical block.
	idxPos := indexOf(string(data), `"idx"`)
	prevPos := indexOf(string(data), `"previous_block_hash"`)
	sidelinksPos := indexOf(string(data), `"validation_sidelinks"`)
	numSidelinksPos := indexOf(string(data), `"num_sidelinks"`)
	powPos := indexOf(string(data), `"pow"`)
	tsPos := indexOf(string(data), `"timestamp"`)
	recordsPos := indexOf(string(data), `"records"`)
	difficultyPos := indexOf(string(data), `"difficulty"`)

	assert.True(t, idxPos < prevPos)
	assert.True(t, prevPos < sidelinksPos)
	assert.True(t, sidelinksPos < numSidelinksPos)
	assert.True(t, numSidelinksPos < powPos)
	assert.True(t, powPos < tsPos)
	assert.True(t, tsPos < recordsPos)
	assert.True(t, recordsPos < difficultyPos)
}

func TestBlockRoundTrip(t *testing.T) {
	b := Genesis(hashutil.ZeroHash(), 3)
	b.AddRecord("first", "peer-a")
	b.AddRecord("second", "peer-b")
	b.Pow = 12345

	data, err := b.MarshalJSON()
	require.NoError(t, err)

	var decoded Block
	require.NoError(t, decoded.UnmarshalJSON(data))

	redata, err := decoded.MarshalJSON()
	require.NoError(t, err)

	assert.Equal(t, string(data), string(redata))
	assert.Equal(t, b.Idx, decoded.Idx)
	assert.Equal(t, b.Pow, decoded.Pow)
	assert.Len(t, decoded.Records, 2)
}

func TestBlockHashDeterministic(t *testing.T) {
	b1 := Genesis(hashutil.ZeroHash(), 1)
	b2 := Genesis(hashutil.ZeroHash(), 1)
	b2.Timestamp = b1.Timestamp

	h1, err := b1.Hash()
	require.NoError(t, err)
	h2, err := b2.Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
