package shell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateHashrateReturnsPositiveValue(t *testing.T) {
	rate := EstimateHashrate(50 * time.Millisecond)
	assert.Greater(t, rate, 0.0)
}
