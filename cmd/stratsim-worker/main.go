package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stratsim/internal/app"
	"stratsim/internal/config"
	"stratsim/internal/worker"
)

func main() {
	configPath := flag.String("config", config.PathFromEnv(""), "path to a TOML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.Store.Kind == config.StoreMemory {
		logger.Warn("worker is using the in-memory store and will only see games it creates")
	}

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	w := worker.New(rt.Service, logger, cfg.Worker.RoundDeadline.Duration, cfg.Worker.Parallelism)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("STRATSIM_WORKER_RUN_ONCE")), "true")
	if runOnce {
		n, err := w.Tick(ctx)
		if err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "advanced", n)
		return
	}
	w.Run(ctx, cfg.Worker.Interval.Duration)
}
