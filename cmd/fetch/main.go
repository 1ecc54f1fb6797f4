package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"candle-stream/internal/config"
	"candle-stream/internal/fetch"
	"candle-stream/internal/logging"
	"candle-stream/internal/market"

	"go.uber.org/zap"
)

// fetch runs the market data command once through the gateway and prints
// the candles as the server would push them.
func main() {
	configPath := flag.String("config", "", "optional config path")
	budget := flag.Duration("budget", 0, "overall time budget (defaults to fetch.timeout)")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	if *budget <= 0 {
		*budget = cfg.Fetch.Timeout
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	gateway, err := fetch.New(cfg.Fetch, log, nil, nil)
	if err != nil {
		fatal(err)
	}
	start := time.Now()
	candles, err := gateway.Fetch(context.Background(), *budget)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("fetch failed",
			zap.String("kind", fetch.Kind(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		var procErr *fetch.ProcessError
		if errors.As(err, &procErr) && procErr.Stderr != "" {
			fmt.Fprintln(os.Stderr, procErr.Stderr)
		}
		os.Exit(1)
	}
	log.Info("fetch ok", zap.Int("candles", len(candles)), zap.Duration("elapsed", elapsed))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(market.NewPriceUpdate(candles)); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
