package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"limitbook/config"
	"limitbook/core"
	"limitbook/observability/logging"
	telemetry "limitbook/observability/otel"
	"limitbook/services/orderbookd/history"
	"limitbook/services/orderbookd/keeper"
	"limitbook/services/orderbookd/server"
	"limitbook/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/orderbookd/config.toml", "path to orderbookd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("orderbookd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LIMITBOOK_ENV"))
	if env == "" {
		env = cfg.Service.Environment
	}
	logger := logging.Setup("orderbookd", env, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "orderbookd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("orderbookd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("orderbookd: open storage: %v", err)
	}

	events, err := history.Open(cfg.History.Driver, cfg.History.DSN, logger)
	if err != nil {
		log.Fatalf("orderbookd: open history: %v", err)
	}
	defer events.Close()

	opts, err := core.NodeOptions(cfg)
	if err != nil {
		log.Fatalf("orderbookd: node options: %v", err)
	}
	opts.Emitter = events
	opts.Logger = logger
	node, err := core.NewNode(db, opts)
	if err != nil {
		log.Fatalf("orderbookd: init node: %v", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error("close node", "error", err)
		}
	}()

	auth, err := server.NewAuthenticator(server.AuthConfig{
		Disabled:   cfg.Auth.Disabled,
		HMACSecret: cfg.JWTSecret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}, logger)
	if err != nil {
		log.Fatalf("orderbookd: auth: %v", err)
	}
	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled; callers are taken from the X-Caller header")
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.Service.ListenAddress,
		ReadTimeout:   cfg.Service.ReadTimeout.Duration,
		WriteTimeout:  cfg.Service.WriteTimeout.Duration,
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
	}, node, events, auth, logger)
	if err != nil {
		log.Fatalf("orderbookd: server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go flushLoop(ctx, node, cfg.Service.FlushInterval.Duration, logger)

	if cfg.Keeper.Enabled {
		executor, err := config.ParseAddress(cfg.Keeper.Address, false)
		if err != nil {
			log.Fatalf("orderbookd: keeper address: %v", err)
		}
		k, err := keeper.New(node, keeper.Config{
			Address:  executor,
			Interval: cfg.Keeper.Interval.Duration,
			MaxBatch: cfg.Keeper.MaxBatch,
		}, logger)
		if err != nil {
			log.Fatalf("orderbookd: keeper: %v", err)
		}
		go k.Run(ctx)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		stop()
	}
	logger.Info("orderbookd shutting down")
}

type flusher interface {
	Flush() error
}

func flushLoop(ctx context.Context, node flusher, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := node.Flush(); err != nil {
				logger.Error("flush state", "error", err)
			}
		}
	}
}
