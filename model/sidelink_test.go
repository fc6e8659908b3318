package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSidelinkIndicesEmptyBelowHeightThree(t *testing.T) {
	assert.Empty(t, DeriveSidelinkIndices([]byte("seed"), 1, 2))
	assert.Empty(t, DeriveSidelinkIndices([]byte("seed"), 2, 2))
}

func TestDeriveSidelinkIndicesDeterministic(t *testing.T) {
	prevHash := []byte("some-previous-hash")

	a := DeriveSidelinkIndices(prevHash, 10, 3)
	b := DeriveSidelinkIndices(prevHash, 10, 3)

	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
}

func TestDeriveSidelinkIndicesReturnsAllWhenKExceedsCandidates(t *testing.T) {
	prevHash := []byte("seed")
	// height=5 -> candidates 1..=3 (3 candidates); k=10 > 3.
	got := DeriveSidelinkIndices(prevHash, 5, 10)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, got)
}

func TestDeriveSidelinkIndicesWithinCandidateRange(t *testing.T) {
	prevHash := []byte("another-seed")
	// height=20 -> candidates 1..=18.
	got := DeriveSidelinkIndices(prevHash, 20, 5)
	assert.Len(t, got, 5)
	seen := map[uint64]bool{}
	for _, idx := range got {
		assert.GreaterOrEqual(t, idx, uint64(1))
		assert.LessOrEqual(t, idx, uint64(18))
		assert.False(t, seen[idx], "sidelink indices must be unique")
		seen[idx] = true
	}
}

func TestDeriveSidelinkIndicesVariesBySeed(t *testing.T) {
	a := DeriveSidelinkIndices([]byte("seed-one"), 30, 4)
	b := DeriveSidelinkIndices([]byte("seed-two"), 30, 4)
	assert.NotEqual(t, a, b)
}
