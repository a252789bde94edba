package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flashsale/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("flash sale service starting")

	if err := app.Run(ctx); err != nil {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("flash sale service stopped")
}
