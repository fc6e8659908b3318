package store

import (
	"path/filepath"
	"testing"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "chain.jsonl"))
	require.NoError(t, err)
	return s
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)

	g := model.Genesis(hashutil.ZeroHash(), 2)
	require.NoError(t, s.Append(g))

	length, err := s.Length()
	require.NoError(t, err)
	require.Equal(t, 1, length)

	got, err := s.Get(0)
	require.NoError(t, err)
	require.Equal(t, g.Idx, got.Idx)
}

func TestGetByIndicesAndRange(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		b := model.Genesis(hashutil.ZeroHash(), 0)
		b.Idx = uint64(i + 1)
		require.NoError(t, s.Append(b))
	}

	blocks, err := s.GetByIndices([]int{0, 2, 4})
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.EqualValues(t, 1, blocks[0].Idx)
	require.EqualValues(t, 3, blocks[1].Idx)
	require.EqualValues(t, 5, blocks[2].Idx)

	rng, err := s.GetRange(1, 4)
	require.NoError(t, err)
	require.Len(t, rng, 3)

	last, err := s.GetLastN(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.EqualValues(t, 5, last[1].Idx)
}

func TestTruncateLast(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		b := model.Genesis(hashutil.ZeroHash(), 0)
		b.Idx = uint64(i + 1)
		require.NoError(t, s.Append(b))
	}

	require.NoError(t, s.TruncateLast())

	length, err := s.Length()
	require.NoError(t, err)
	require.Equal(t, 2, length)
}
