package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/readwise/internal/adapters/mcp"
	"github.com/kirillkom/readwise/internal/bootstrap"
	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "mcp")
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("mcp_server_started", "owner_id", cfg.MCPOwnerID)
	if err := mcpadapter.NewServer(app.LibraryUC, cfg.MCPOwnerID, version).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
