// Command slchaind runs a single slchain node: it opens (or creates) a
// local block store, joins the libp2p gossip network, starts the mining
// goroutine, and reads commands from an interactive shell. Startup
// sequence grounded on the teacher's main.go, reduced from a multi-service
// process manager to this spec's single-process scope (SPEC_FULL.md §8.3).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/brackwater-labs/slchain/config"
	"github.com/brackwater-labs/slchain/miner"
	"github.com/brackwater-labs/slchain/node"
	"github.com/brackwater-labs/slchain/p2p"
	"github.com/brackwater-labs/slchain/shell"
	"github.com/brackwater-labs/slchain/store"
	"github.com/brackwater-labs/slchain/ulogger"
)

func main() {
	gocore.SetInfo("slchaind", "v1.0.0", "")

	app := &cli.App{
		Name:  "slchaind",
		Usage: "run a slchain proof-of-work gossip node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "libp2p listen multiaddr, overrides config"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory for block store and identity key, overrides config"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error, overrides config"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	settings := config.New()
	if v := cliCtx.String("listen"); v != "" {
		settings.ListenAddress = v
	}
	if v := cliCtx.String("data-dir"); v != "" {
		settings.DataDir = v
	}
	if v := cliCtx.String("log-level"); v != "" {
		settings.LogLevel = v
	}

	logger := ulogger.New("slchaind", ulogger.WithLevel(settings.LogLevel))

	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(filepath.Join(settings.DataDir, "chain.jsonl"))
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identityKeyPath := settings.IdentityKeyPath
	if !filepath.IsAbs(identityKeyPath) {
		identityKeyPath = filepath.Join(settings.DataDir, identityKeyPath)
	}

	p2pNode, err := p2p.New(ctx, logger, p2p.Config{
		ListenAddress:   settings.ListenAddress,
		IdentityKeyPath: identityKeyPath,
		SharedKey:       settings.SharedKey,
		StaticPeers:     settings.StaticPeers,
		UsePrivateDHT:   settings.UsePrivateDHT,
	})
	if err != nil {
		return fmt.Errorf("construct p2p node: %w", err)
	}
	defer p2pNode.Close()

	core := node.New(logger, st, p2pNode, node.BroadcastSettings{
		RetryAttempts:      settings.BroadcastRetryAttempts,
		Backoff:            settings.BroadcastBackoff,
		MinPeerCoveragePct: settings.BroadcastFailureTolerancePct,
	})

	if err := p2pNode.Start(ctx, core.Handlers()); err != nil {
		return fmt.Errorf("start p2p node: %w", err)
	}

	newTip, newRecord, mined := core.MinerChannels()
	m := miner.New(logger, newTip, newRecord, mined)
	m.PollInterval = settings.MinerPollInterval
	go m.Run()

	go core.Run(ctx)

	if settings.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(settings.MetricsAddress, mux); err != nil {
				logger.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	sh := shell.New(core, p2pNode, st, logger, os.Stdin, os.Stdout)
	sh.PrintBanner()

	done := make(chan struct{})
	go func() {
		sh.Run()
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-sig:
		logger.Infof("received shutdown signal")
	}

	cancel()
	return nil
}
