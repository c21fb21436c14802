package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"MarketSettle/internal/config"
	"MarketSettle/internal/db"
	"MarketSettle/internal/payout"
	"MarketSettle/internal/store"
	"MarketSettle/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.DB.Driver != config.DriverPostgres {
		log.Fatalf("worker requires db.driver=postgres, got %q", cfg.DB.Driver)
	}
	if cfg.Payout.StripeSecretKey == "" {
		log.Fatalf("worker requires payout.stripe_secret_key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	gate := &payout.Gate{
		Store:    st,
		Provider: payout.NewStripeProvider(cfg.Payout.StripeSecretKey, cfg.PayoutTimeout(), cfg.Payout.RefreshURL, cfg.Payout.ReturnURL),
		Timeout:  cfg.PayoutTimeout(),
		Country:  cfg.Payout.Country,
		Logger:   logger,
	}

	w := &worker.Worker{
		Store:     st,
		Payouts:   gate,
		Interval:  cfg.WorkerInterval(),
		BatchSize: cfg.Worker.BatchSize,
		Logger:    logger,
	}

	logger.Info("worker started", "interval", cfg.WorkerInterval().String(), "batch_size", cfg.Worker.BatchSize)
	w.Run(ctx)
}
