package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"subpay/internal/infrastructure"
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

	slog.Info("subpay is running")

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("application stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("subpay shut down cleanly")
}
