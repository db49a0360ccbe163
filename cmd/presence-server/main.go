package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/server"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/config"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/logging"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
