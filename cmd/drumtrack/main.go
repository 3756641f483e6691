package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"drumtrack/agent"
	"drumtrack/config"
	"drumtrack/infrastructure/audit"
	"drumtrack/infrastructure/cache"
	"drumtrack/infrastructure/device"
	"drumtrack/infrastructure/logging"
	"drumtrack/infrastructure/sqlite"
	"drumtrack/scanning"
	"drumtrack/store"
)

func main() {
	cfgPath := getenv("DRUMTRACK_CONFIG", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	debugRing := scanning.NewDebugLog(cfg.Logging.DebugRingSize)
	logger, err := logging.New(cfg.Logging.FilePath, cfg.Logging.Console, debugRing)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	db, err := sqlite.OpenDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, ""); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	deviceID, err := device.NewIdentity(cfg.Device.DataDir).ID()
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve device id")
	}

	st := store.New(db, audit.NewService())
	ctrl := scanning.NewController(st, deviceID, logger, debugRing)
	logins := cache.NewLoginCache()

	server := agent.NewServer(cfg.Server.Addr, st, ctrl, logins, logger)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start server")
	}
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("device_id", deviceID).
		Msg("drumtrack agent listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
