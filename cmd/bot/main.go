// hftsim-backtest runs a deterministic event-driven backtest of the
// Avellaneda-Stoikov market maker against recorded market data.
//
// Architecture:
//
//	main.go                    — entry point: loads config, runs the backtest, waits for SIGINT/SIGTERM
//	internal/engine            — orchestrator: drives the shared logical clock, ticks each asset's Maker
//	internal/strategy/maker.go — Avellaneda-Stoikov quoting: computes bid/ask from mid price + inventory skew
//	internal/strategy/inventory.go — tracks signed position, avg entry price, realized/unrealized PnL
//	internal/backtest/hbt      — the deterministic multi-asset driver (pkg/bot.Bot) replaying recorded events
//	internal/backtest/fetch    — optional HTTP retrieval of recorded data files
//	internal/risk/manager.go   — enforces per-asset, global exposure, daily loss, and price-shock limits
//	internal/store/store.go    — JSON file persistence for positions and run results
//
// How it makes money:
//
//	The strategy captures the bid-ask spread on the simulated instrument.
//	It posts a buy (bid) below mid price and a sell (ask) above mid price.
//	When both sides fill, it earns the spread difference.
//	Avellaneda-Stoikov adjusts quotes based on inventory risk — if it
//	accumulates too much of one side, it skews prices to attract offsetting fills.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hftsim/internal/api"
	"hftsim/internal/backtest/fetch"
	"hftsim/internal/config"
	"hftsim/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HFTSIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	var fetcher *fetch.Fetcher
	if cfg.Fetch.Enabled {
		fetcher = fetch.NewFetcher(cfg.Fetch.CacheDir)
	}

	runner, err := engine.New(*cfg, fetcher, logger)
	if err != nil {
		logger.Error("failed to build runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	logger.Info("backtest starting",
		"assets", len(cfg.Assets),
		"max_global_exposure", cfg.Risk.MaxGlobalExposure,
		"max_daily_loss", cfg.Risk.MaxDailyLoss,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, runner, *cfg, logger)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		defer apiServer.Stop()
	}

	if err := runner.Run(ctx); err != nil {
		logger.Error("backtest run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backtest complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
