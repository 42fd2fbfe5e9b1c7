// Command swapd serves a fixed-rate two-asset swap contract over HTTP.
//
// Usage:
//
//	swapd -config swap.yaml
//	swapd -asset-a USDC -asset-b EURC -storage wal -ledger sqlite
//
// Optional environment variables (also read from .env):
//
//	SIMPLESWAP_REDIS_PASSWORD for redis instance storage
//	SIMPLESWAP_LEDGER_STATE   memory ledger snapshot path
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vadiminshakov/simpleswap/config"
	"github.com/vadiminshakov/simpleswap/internal/app"
	"github.com/vadiminshakov/simpleswap/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	l, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to start", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			l.Error("failed to close storage", zap.Error(err))
		}
	}()

	l.Info("started",
		zap.String("contract", cfg.Contract.String()),
		zap.String("network", cfg.Network),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("ledger", cfg.Ledger.Backend))

	if err := a.Run(ctx); err != nil {
		l.Error("stopped with error", zap.Error(err))
		return
	}
	l.Info("stopped")
}
