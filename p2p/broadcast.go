package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/brackwater-labs/slchain/errors"
	"github.com/brackwater-labs/slchain/ulogger"
)

// Broadcaster retries a gossip publish with exponential backoff, reporting
// errors.BroadcastInsufficientPeers when the topic has too few subscribed
// peers for the publish to be considered delivered. Adapted from the
// teacher's util/distributor.Distributor: same Option-function
// configuration shape and percentage-based failure tolerance, retargeted
// from gRPC transaction fan-out to a single gossipsub publish retry.
type Broadcaster struct {
	node     *Node
	logger   ulogger.Logger
	attempts int
	backoff  time.Duration
	// minCoveragePct, if > 0, is the minimum percentage of this node's
	// connected peers that must also be subscribed to a topic before a
	// publish is even attempted.
	minCoveragePct float64
}

// BroadcastOption configures a Broadcaster.
type BroadcastOption func(*Broadcaster)

// WithAttempts sets the maximum number of publish attempts before giving up.
func WithAttempts(n int) BroadcastOption {
	return func(b *Broadcaster) { b.attempts = n }
}

// WithBackoff sets the initial backoff duration between attempts, doubled
// after each failure.
func WithBackoff(d time.Duration) BroadcastOption {
	return func(b *Broadcaster) { b.backoff = d }
}

// WithMinPeerCoverage sets the minimum percentage (0-100) of connected
// peers that must be subscribed to a topic before Publish will attempt it,
// the single-topic analogue of the teacher's distributor failure-tolerance
// percentage.
func WithMinPeerCoverage(pct float64) BroadcastOption {
	return func(b *Broadcaster) { b.minCoveragePct = pct }
}

// NewBroadcaster builds a Broadcaster publishing through node.
func NewBroadcaster(node *Node, logger ulogger.Logger, opts ...BroadcastOption) *Broadcaster {
	b := &Broadcaster{node: node, logger: logger, attempts: 3, backoff: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish retries node.Publish(topicName, data) up to b.attempts times with
// exponential backoff. It returns an errors.CodeBroadcastInsufficientPeers
// error when every attempt fails (whatever the cause of the failures), when
// ctx is cancelled while waiting, or immediately if fewer than
// minCoveragePct of connected peers are subscribed to the topic at all.
func (b *Broadcaster) Publish(ctx context.Context, topicName string, data []byte) error {
	if b.minCoveragePct > 0 {
		total := len(b.node.Peers())
		if total > 0 {
			coverage := float64(b.node.TopicPeerCount(topicName)) / float64(total) * 100
			if coverage < b.minCoveragePct {
				return errors.New(errors.CodeBroadcastInsufficientPeers,
					fmt.Sprintf("only %.0f%% of peers subscribed to %s, below %.0f%% minimum", coverage, topicName, b.minCoveragePct), nil)
			}
		}
	}

	backoff := b.backoff
	var lastErr error

	for attempt := 0; attempt < b.attempts; attempt++ {
		err := b.node.Publish(ctx, topicName, data)
		if err == nil {
			return nil
		}
		lastErr = err
		b.logger.Warnf("broadcast attempt %d/%d on %s failed: %v", attempt+1, b.attempts, topicName, err)

		select {
		case <-ctx.Done():
			return errors.New(errors.CodeBroadcastInsufficientPeers, "broadcast cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return errors.New(errors.CodeBroadcastInsufficientPeers, "exhausted broadcast attempts on "+topicName, lastErr)
}
