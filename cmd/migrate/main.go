package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"grocery-orders/config"
	"grocery-orders/internal/store"
	"grocery-orders/internal/util"

	"go.uber.org/zap"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|reset")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.SyncLogger()
	logger := util.GetLogger().With(zap.String("cmd", *cmd))

	if *cmd == "reset" && cfg.Server.IsProduction() {
		logger.Fatal("reset is disabled in production")
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.RunMigrations(ctx, *cmd, flag.Args()...); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Migration finished")
}
