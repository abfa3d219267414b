// Package main is the entry point for the vulnarena server.
//
// main stays minimal: load config, set up logging, make sure the SQLite
// data directory exists, build the server, run it. Everything with actual
// behavior lives in internal/.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rahat/vulnarena/internal/config"
	"github.com/rahat/vulnarena/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.JWTSecret == "" {
		// Every route past register/login needs a session, so there is no
		// degraded "auth off" mode worth starting in.
		logger.Error("JWT_SECRET is required (generate one: openssl rand -hex 32)")
		os.Exit(1)
	}

	// The SQLite driver opens its file lazily; the parent directory has to
	// exist by then or the first connect fails with a confusing error.
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create data directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM or a fatal server error.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
