package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"MarketSettle/internal/config"
	"MarketSettle/internal/db"
	"MarketSettle/migrations"

	"github.com/pressly/goose/v3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if cfg.DB.Driver != config.DriverPostgres {
		log.Fatalf("migrations require db.driver=postgres, got %q", cfg.DB.Driver)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	sqlDB := db.OpenSQL(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(log.Default())
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose dialect: %v", err)
	}

	switch command {
	case "up":
		err = goose.UpContext(ctx, sqlDB, ".")
	case "down":
		err = goose.DownContext(ctx, sqlDB, ".")
	case "status":
		err = goose.StatusContext(ctx, sqlDB, ".")
	default:
		log.Fatalf("unknown command %q (want up, down or status)", command)
	}
	if err != nil {
		log.Fatalf("migrate %s failed: %v", command, err)
	}
	slog.Info("migrations done", "command", command)
}
