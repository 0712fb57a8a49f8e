// Command sentinel runs a standalone Sentinel server: it loads
// configuration, wires the durable store, cache, and every component
// described in §4, and serves the HTTP+WebSocket transport until
// interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	sentinel "github.com/agentlens/sentinel"
	"github.com/agentlens/sentinel/cache/redis"
	"github.com/agentlens/sentinel/internal/config"
	"github.com/agentlens/sentinel/observer"
	"github.com/agentlens/sentinel/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgPath := os.Getenv("SENTINEL_CONFIG")
	if cfgPath == "" {
		cfgPath = "sentinel.toml"
	}
	cfg := config.Load(cfgPath)

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		logger.Error("sentinel: storage dir init failed", "error", err)
		os.Exit(1)
	}
	store := sqlite.New(filepath.Join(cfg.Storage.Dir, "sentinel.db"))

	cache, err := redis.New(cfg.Cache.URL)
	if err != nil {
		logger.Error("sentinel: cache init failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	instruments, shutdownMetrics, err := observer.Init(ctx, "sentinel")
	if err != nil {
		logger.Error("sentinel: observability init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(ctx)

	app := sentinel.NewApp(cfg, sentinel.Deps{
		Store:  store,
		Cache:  cache,
		Tracer: observer.NewTracer(),
		Meter:  instruments,
		Logger: logger,
	})

	if err := app.RunWithSignal(); err != nil {
		logger.Error("sentinel: exited with error", "error", err)
		os.Exit(1)
	}
}
