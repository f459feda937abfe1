// Package main is the entry point for the namedq relay daemon.
// It attaches configured routes to their named queues, relays messages
// between the queues and the bus, and serves the ops API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"namedq/internal/api"
	"namedq/internal/banner"
	"namedq/internal/config"
	"namedq/internal/queue"
	kafkaqueue "namedq/internal/queue/kafka"
	memoryqueue "namedq/internal/queue/memory"
	"namedq/internal/relay"
	"namedq/internal/store"
	memorystor "namedq/internal/store/memory"
	postgresstor "namedq/internal/store/postgres"
	redisstor "namedq/internal/store/redis"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	banner.Print(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := initLogger(&cfg.Logger)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"routes", len(cfg.Routes),
	)

	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Attach every queue before serving, so the API reports them from the first request
	if err := deps.relay.Open(); err != nil {
		logger.Error("failed to open named queues", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := deps.relay.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("relay error", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("namedq started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	<-relayDone
	if err := deps.relay.Stop(); err != nil {
		logger.Error("relay shutdown error", "error", err)
	}

	logger.Info("namedq stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server *api.Server
	relay  *relay.Service
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		stateStore   store.StateStore
		archiveRepo  store.ArchiveRepository
		transport    queue.Transport
		cleanupFuncs []func()
	)

	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")

		memStateStore := memorystor.NewStateStore()
		stateStore = memStateStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = memStateStore.Close() })

		archiveRepo = memorystor.NewArchiveRepository(10000)

		bus := memoryqueue.NewBus(10000)
		bus.OnError = func(msg *queue.Message, err error) {
			logger.Error("in-memory bus handler failed", "error", err, "message_id", msg.Headers["id"])
		}
		transport = bus
		cleanupFuncs = append(cleanupFuncs, func() { _ = bus.Close() })
	} else {
		logger.Info("initializing production storage (Kafka, Redis, PostgreSQL)")

		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		archiveRepo = postgresstor.NewArchiveRepository(db)

		redisStore, err := redisstor.NewStateStore(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		stateStore = redisStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisStore.Close() })

		transport = kafkaqueue.NewTransport(&cfg.Kafka, logger)
	}

	relayService := relay.NewService(
		cfg.Routes,
		cfg.Queue,
		transport,
		stateStore,
		archiveRepo,
		logger,
	)

	queueHandler := api.NewQueueHandler(relayService, logger)
	routeHandler := api.NewRouteHandler(relayService, stateStore, archiveRepo, logger)

	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		QueueHandler: queueHandler,
		RouteHandler: routeHandler,
	})

	return &dependencies{
		server: server,
		relay:  relayService,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
