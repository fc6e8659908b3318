// Package config bootstraps an immutable Settings snapshot from gocore's
// global config source, per SPEC_FULL.md §8.2.
package config

import (
	"fmt"
	"time"

	"github.com/ordishs/gocore"
)

// Settings is an immutable snapshot of node configuration, built once at
// startup and then passed by pointer to every component. Nothing in this
// package reads gocore.Config() after New returns.
type Settings struct {
	// ListenAddress is the libp2p listen multiaddr, e.g. "/ip4/0.0.0.0/tcp/9000".
	ListenAddress string
	// DataDir holds the node's block store file and identity key.
	DataDir string
	// IdentityKeyPath is the path to the node's Ed25519 private key file,
	// relative to DataDir if not absolute. Generated on first run if absent.
	IdentityKeyPath string
	// SharedKey, if non-empty, is the hex-encoded pre-shared key for a
	// private libp2p network (SPEC_FULL.md §6.1).
	SharedKey string
	// StaticPeers are multiaddrs dialed at startup in addition to mDNS
	// discovery.
	StaticPeers []string
	// UsePrivateDHT enables the optional Kademlia DHT static-peer-bridge
	// discovery path alongside mDNS.
	UsePrivateDHT bool
	// StartDifficulty is the hex-encoded starting difficulty target. The
	// shell's `init` command does not read it: the operator always supplies
	// the difficulty.
	StartDifficulty string
	// StartNumSidelinks is the configured starting sidelink count. The
	// shell's `init` command does not read it either.
	StartNumSidelinks int
	// LogLevel is one of debug/info/warn/error.
	LogLevel string
	// MetricsAddress is the listen address for the Prometheus /metrics
	// endpoint, e.g. ":9100". Empty disables it.
	MetricsAddress string
	// MinerPollInterval is how often (in nonce iterations) the miner checks
	// for preemption, per SPEC_FULL.md §4.6.
	MinerPollInterval uint64
	// BroadcastRetryAttempts/BroadcastBackoff/BroadcastFailureTolerancePct
	// configure p2p.Broadcaster (SPEC_FULL.md / DESIGN.md "util/distributor").
	BroadcastRetryAttempts       int
	BroadcastBackoff             time.Duration
	BroadcastFailureTolerancePct float64
}

// New builds a Settings snapshot from gocore's global config accessor. This
// is the only place in the codebase that reads gocore.Config() directly.
func New() *Settings {
	c := gocore.Config()

	listen, _ := c.Get("listen_address", "/ip4/0.0.0.0/tcp/9000")
	dataDir, _ := c.Get("data_dir", "./data")
	keyPath, _ := c.Get("identity_key_path", "identity.key")
	sharedKey, _ := c.Get("shared_key", "")
	staticPeers := c.GetMulti("static_peers", ",", []string{})
	useDHT := c.GetBool("use_private_dht", false)
	difficulty, _ := c.Get("start_difficulty", "00ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	numSidelinks := c.GetInt("start_num_sidelinks", 2)
	logLevel, _ := c.Get("log_level", "info")
	metricsAddr, _ := c.Get("metrics_address", ":9100")
	pollInterval := c.GetInt("miner_poll_interval", 10_000_000)
	retryAttempts := c.GetInt("broadcast_retry_attempts", 3)
	backoffMs := c.GetInt("broadcast_backoff_ms", 250)
	failureTolerance, _ := c.Get("broadcast_failure_tolerance_pct", "50")

	tolerancePct := parseFloatOrDefault(failureTolerance, 50)

	return &Settings{
		ListenAddress:                listen,
		DataDir:                      dataDir,
		IdentityKeyPath:              keyPath,
		SharedKey:                    sharedKey,
		StaticPeers:                  staticPeers,
		UsePrivateDHT:                useDHT,
		StartDifficulty:              difficulty,
		StartNumSidelinks:            numSidelinks,
		LogLevel:                     logLevel,
		MetricsAddress:               metricsAddr,
		MinerPollInterval:            uint64(pollInterval),
		BroadcastRetryAttempts:       retryAttempts,
		BroadcastBackoff:             time.Duration(backoffMs) * time.Millisecond,
		BroadcastFailureTolerancePct: tolerancePct,
	}
}

func parseFloatOrDefault(s string, def float64) float64 {
	var f float64
	if _, err := fmt.Sscan(s, &f); err != nil {
		return def
	}
	return f
}
