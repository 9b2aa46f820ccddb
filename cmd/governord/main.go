package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/admission"
	"github.com/querywarden/querywarden/pkg/apiserver"
	"github.com/querywarden/querywarden/pkg/config"
	"github.com/querywarden/querywarden/pkg/enforcer"
	"github.com/querywarden/querywarden/pkg/engine/enginetest"
	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/lifecycle"
	"github.com/querywarden/querywarden/pkg/metrics"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/store/file"
	redisstore "github.com/querywarden/querywarden/pkg/store/redis"
	"github.com/querywarden/querywarden/pkg/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Logging)
	defer logger.Sync()

	catalog, err := cfg.Node.Catalog()
	if err != nil {
		logger.Fatal("invalid node capacity configuration", zap.Error(err))
	}

	var redisClient *redisstore.Client
	needsRedis := cfg.Events.Enabled || cfg.Groups.Driver == "redis"
	if needsRedis {
		redisClient, err = redisstore.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var bus *eventbus.Bus
	if cfg.Events.Enabled {
		bus = eventbus.NewBus(redisClient.Client())
	}
	publisher := eventbus.NewPublisher(bus, logger)

	var source lifecycle.Source
	switch cfg.Groups.Driver {
	case "redis":
		source = redisstore.NewGroupSource(redisClient.Client(), cfg.Groups.RedisKey)
	default:
		source = file.NewSource(cfg.Groups.FilePath)
	}

	tr := tracker.New(catalog)
	registry := stats.NewRegistry(catalog, tr, logger)
	manager := lifecycle.NewManager(source, registry, publisher, logger, cfg.Lifecycle.PollInterval)
	controller := admission.NewController(catalog, manager, tr, registry, publisher, logger)

	// The real execution framework registers itself here; standalone the
	// daemon governs the in-memory engine driven over the admission API.
	eng := enginetest.New(tr, registry)

	enf := enforcer.New(catalog, manager, tr, registry, eng, publisher, logger,
		cfg.Enforcement.Interval, cfg.Enforcement.MaxCancellationsPerCycle)
	reporter := metrics.NewReporter(catalog, tr, registry, logger, cfg.Metrics.ReportInterval)
	server := apiserver.NewServer(cfg, logger, registry, tr, catalog, controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go publisher.Run(ctx)
	go manager.Run(ctx)
	go enf.Run(ctx)
	go reporter.Run(ctx)
	go func() {
		if err := server.Run(ctx); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	logger.Info("governord started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.String("groups_driver", cfg.Groups.Driver),
		zap.Duration("enforcement_interval", cfg.Enforcement.Interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("governord shutting down")
}

func newLogger(cfg config.LoggingConfig) *zap.Logger {
	var logger *zap.Logger
	var err error
	if cfg.Format == "console" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
