package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candle-stream/internal/client"
	"candle-stream/internal/config"
	"candle-stream/internal/logging"
	"candle-stream/internal/market"

	"go.uber.org/zap"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:3001/ws", "candle stream websocket url")
	subprotocol := flag.String("subprotocol", "", "subprotocol to request (candles.json or candles.msgpack)")
	reconnect := flag.Duration("reconnect", 2*time.Second, "delay between reconnect attempts")
	ping := flag.Duration("ping", 30*time.Second, "transport ping interval, 0 to disable")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	log := logging.New(config.LoggingConfig{Level: *level})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*url, *subprotocol, *reconnect, *ping, log)
	err := c.Run(ctx, func(update market.PriceUpdate) {
		if len(update.Candles) == 0 {
			log.Info("empty update")
			return
		}
		last := update.Candles[len(update.Candles)-1]
		log.Info("candles",
			zap.Int("count", len(update.Candles)),
			zap.Uint64("last_timestamp", last.Timestamp),
			zap.Float64("last_close", last.Close),
			zap.Float64("last_volume", last.Volume),
		)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("watch stopped", zap.Error(err))
		os.Exit(1)
	}
}
