package miner

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	nonces      prometheus.Counter
	blocksFound prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

// newMetrics returns the process-wide miner metrics, registering them with
// the default Prometheus registry exactly once regardless of how many
// Miner instances are constructed (multiple Miners in the same process, or
// across tests in the same binary, share one counter set).
func newMetrics() *metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &metrics{
			nonces: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "slchain",
				Subsystem: "miner",
				Name:      "nonces_total",
				Help:      "Total number of proof-of-work nonces attempted.",
			}),
			blocksFound: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "slchain",
				Subsystem: "miner",
				Name:      "blocks_found_total",
				Help:      "Total number of blocks successfully mined.",
			}),
		}
	})
	return sharedMetrics
}
