package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketSettle/internal/config"
	"MarketSettle/internal/db"
	"MarketSettle/internal/events"
	internalhttp "MarketSettle/internal/http"
	"MarketSettle/internal/payments"
	"MarketSettle/internal/payout"
	"MarketSettle/internal/pricing"
	"MarketSettle/internal/services"
	"MarketSettle/internal/settlement"
	"MarketSettle/internal/store"
)

type backend interface {
	services.OrderStore
	payout.AccountStore
}

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

	ctx := context.Background()
	var st backend
	switch cfg.DB.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	default:
		pool, err := db.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		st = store.New(pool)
	}

	gate := &payout.Gate{
		Store:   st,
		Timeout: cfg.PayoutTimeout(),
		Country: cfg.Payout.Country,
		Logger:  logger,
	}
	if cfg.Payout.StripeSecretKey != "" {
		gate.Provider = payout.NewStripeProvider(cfg.Payout.StripeSecretKey, cfg.PayoutTimeout(), cfg.Payout.RefreshURL, cfg.Payout.ReturnURL)
	} else {
		logger.Warn("stripe secret key not set; payout provider calls will fail")
	}

	hub := events.NewHub()
	hub.Logger = logger

	calc := settlement.Calculator{MinorUnits: cfg.MinorUnits()}
	orderSvc := &services.OrderService{
		Store:      st,
		Pricing:    pricing.Service{FeeRate: cfg.FeeRate(), ProductRates: cfg.ProductRates()},
		Calculator: calc,
		Payouts:    gate,
		Events:     hub,
		Currency:   cfg.Currency.Code,
		Logger:     logger,
	}
	if cfg.Payout.StripeSecretKey != "" {
		orderSvc.Checkout = payments.NewStripeCheckout(cfg.Payout.StripeSecretKey, cfg.PayoutTimeout(), cfg.Payout.SuccessURL, cfg.Payout.CancelURL)
	}

	webhooks := &payments.Processor{
		Orders:     orderSvc,
		Payouts:    gate,
		Secret:     cfg.Payout.WebhookSecret,
		Calculator: calc,
		Logger:     logger,
	}

	h := internalhttp.NewHandler(orderSvc, gate, webhooks, hub)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", cfg.Server.Addr, "driver", cfg.DB.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
