package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daraja-mcp/internal/api"
	"daraja-mcp/internal/callback"
	"daraja-mcp/internal/config"
	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/db"
	"daraja-mcp/internal/event"
	"daraja-mcp/internal/kafka"
	"daraja-mcp/internal/logging"
	"daraja-mcp/internal/mcp"
	"daraja-mcp/internal/metrics"
	"daraja-mcp/internal/store"
	"daraja-mcp/internal/tools"
)

const sinkDrainTimeout = 5 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg := config.MustLoadConfig(configPath)

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paymentStore := store.New(cfg.Store.Capacity)

	sinks, closeSinks := buildSinks(ctx, cfg, logger)
	defer closeSinks()
	sinkDispatcher := event.NewDispatcher(cfg.Sinks.Parallelism, logger, sinks...)

	processor := callback.NewProcessor(paymentStore, sinkDispatcher, logger)
	gateway := daraja.NewClient(cfg.Daraja, cfg.CallbackURL(), logger)
	toolDispatcher := tools.NewDispatcher(paymentStore, gateway, cfg.CallbackURL(), cfg.Callback.Port, logger)

	router := api.NewRouter(api.Dependencies{
		Store:       paymentStore,
		Callbacks:   callback.NewHandler(processor, logger),
		Tools:       mcp.NewHTTPHandler(toolDispatcher, logger),
		CallbackURL: cfg.CallbackURL(),
		Transport:   cfg.MCP.Transport,
		Logger:      logger,
	})
	server := api.NewServer(cfg.Callback.Addr(), router, logger)

	logger.Info("Daraja MCP server starting",
		"transport", cfg.MCP.Transport,
		"addr", cfg.Callback.Addr(),
		"callbackUrl", cfg.CallbackURL(),
		"environment", cfg.Daraja.Env,
		"sinks", sinkDispatcher.Sinks())

	switch cfg.MCP.Transport {
	case config.TransportHTTP:
		runHTTP(ctx, server, logger)
	default:
		runStdio(ctx, server, mcp.NewServer(toolDispatcher, paymentStore, logger), logger)
	}

	drainSinks(sinkDispatcher, logger)
	logger.Info("Daraja MCP server stopped")
}

// runHTTP serves tools and callbacks on one listener. Failing to bind is fatal here
// since nothing else would be reachable.
func runHTTP(ctx context.Context, server *api.Server, logger *slog.Logger) {
	ln, err := server.Listen()
	if err != nil {
		logger.Error("Error binding HTTP listener", "error", err)
		os.Exit(1)
	}
	if err := server.Serve(ctx, ln); err != nil {
		logger.Error("HTTP server error", "error", err)
	}
}

// runStdio speaks MCP on stdin/stdout with the callback server beside it. If the
// callback port is taken the tools keep working; get_callback_status reports it.
func runStdio(ctx context.Context, server *api.Server, mcpServer *mcp.Server, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpDone := make(chan struct{})
	ln, err := server.Listen()
	if err != nil {
		logger.Error("Error binding callback listener, continuing without callbacks", "error", err)
		close(httpDone)
	} else {
		go func() {
			defer close(httpDone)
			if err := server.Serve(ctx, ln); err != nil {
				logger.Error("Callback server error", "error", err)
			}
		}()
	}

	mcpDone := make(chan error, 1)
	go func() { mcpDone <- mcpServer.Run(ctx, os.Stdin, os.Stdout) }()

	select {
	case <-ctx.Done():
	case err := <-mcpDone:
		if err != nil {
			logger.Error("MCP server error", "error", err)
		}
	}

	cancel()
	<-httpDone
}

func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]event.Sink, func()) {
	var sinks []event.Sink
	var closers []func()

	if cfg.Kafka.Enabled() {
		writer := kafka.NewWriter(cfg.Kafka)
		closers = append(closers, func() {
			if err := writer.Close(); err != nil {
				logger.Error("Error closing kafka writer", "error", err)
			}
		})
		sinks = append(sinks, kafka.NewPublisher(writer, logger))
		logger.Info("Kafka publisher enabled", "topic", cfg.Kafka.Topic.Payments)
	}

	if cfg.Database.Enabled() {
		archive, closeArchive, err := buildArchive(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("Error setting up callback archive, continuing without it", "error", err)
		} else {
			closers = append(closers, closeArchive)
			sinks = append(sinks, archive)
			logger.Info("Callback archive enabled", "host", cfg.Database.Host)
		}
	}

	return sinks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func buildArchive(ctx context.Context, cfg config.Database, logger *slog.Logger) (*db.Archive, func(), error) {
	connStr := cfg.ConnString()

	if err := db.RunMigrations(connStr, cfg.MigrationsDir); err != nil {
		return nil, nil, err
	}

	pool, err := db.GetPool(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	return db.NewArchive(db.NewCallbackRepository(pool), logger), pool.Close, nil
}

func drainSinks(d *event.Dispatcher, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(sinkDrainTimeout):
		logger.Warn("Timed out waiting for sinks to drain")
	}
}
