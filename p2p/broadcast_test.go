package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterOptionsApply(t *testing.T) {
	b := &Broadcaster{attempts: 3, backoff: 250 * time.Millisecond}
	WithAttempts(5)(b)
	WithBackoff(10 * time.Millisecond)(b)
	WithMinPeerCoverage(75)(b)

	assert.Equal(t, 5, b.attempts)
	assert.Equal(t, 10*time.Millisecond, b.backoff)
	assert.Equal(t, 75.0, b.minCoveragePct)
}
