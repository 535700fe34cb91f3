package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/periphery/internal/application/cluster"
	"github.com/aescanero/periphery/internal/application/node"
	"github.com/aescanero/periphery/internal/application/orchestrator"
	"github.com/aescanero/periphery/internal/application/tasks"
	"github.com/aescanero/periphery/internal/application/workers"
	"github.com/aescanero/periphery/internal/config"
	"github.com/aescanero/periphery/internal/partition"
	"github.com/aescanero/periphery/pkg/adapters/compute"
	memoryevents "github.com/aescanero/periphery/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/periphery/pkg/adapters/events/redis"
	"github.com/aescanero/periphery/pkg/adapters/manifest"
	"github.com/aescanero/periphery/pkg/adapters/metrics/prometheus"
	badgerstorage "github.com/aescanero/periphery/pkg/adapters/storage/badger"
	memorystorage "github.com/aescanero/periphery/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/periphery/pkg/adapters/storage/redis"
	httptransport "github.com/aescanero/periphery/pkg/adapters/transport/http"
	"github.com/aescanero/periphery/pkg/api/grpc"
	"github.com/aescanero/periphery/pkg/api/http"
	"github.com/aescanero/periphery/pkg/api/websocket"
	"github.com/aescanero/periphery/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	startedAt := time.Now()
	isRoot := cfg.IsRoot()
	logger.Info("starting periphery node",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("addr", cfg.Node.Addr),
		zap.Bool("root", isRoot))

	ctx := context.Background()

	// Initialize Redis client when a backend needs it
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	var eventBus ports.EventBus = memoryevents.NewInMemoryEventBus()
	if cfg.Storage.EventBus == config.BackendRedis {
		eventBus = redisevents.NewStreamsEventBus(
			redisClient,
			fmt.Sprintf("periphery-%d", os.Getpid()),
			cfg.Storage.EventStreamLen,
			logger,
		)
	}

	var finals ports.FinalStore = memorystorage.NewFinalStore()
	if cfg.Storage.FinalStore == config.BackendRedis {
		finals = redisstorage.NewFinalStore(redisClient, cfg.Storage.FinalTTL, logger)
	}

	var assignments *badgerstorage.AssignmentStore
	if isRoot && cfg.Storage.AssignmentDBPath != "" {
		assignments, err = badgerstorage.Open(badgerstorage.Config{
			Path:       cfg.Storage.AssignmentDBPath,
			SyncWrites: true,
		}, logger)
		if err != nil {
			logger.Fatal("failed to open assignment database", zap.Error(err))
		}
	}

	metricsRegistry := promclient.NewRegistry()
	metricsCollector := prometheus.NewCollector(metricsRegistry)

	computeLoader := compute.NewLoader(logger)
	transport := httptransport.NewClient(cfg.Timeouts.TransportTimeout, logger)

	var prober ports.Prober = transport
	if cfg.Node.RootGRPCAddr != "" {
		prober = grpc.NewHealthProber(
			map[string]string{cfg.Node.RootAddr: cfg.Node.RootGRPCAddr},
			cfg.Timeouts.TransportTimeout,
		)
	}

	root := cfg.Node.RootAddr
	if isRoot {
		root = ""
	}

	// Initialize application components
	taskManager := tasks.NewManager(tasks.Config{
		Self:      cfg.Node.Addr,
		Root:      root,
		IsRoot:    isRoot,
		QueueSize: cfg.Workers.QueueSize,
		Retry: tasks.RetryPolicy{
			MaxTries:        cfg.Fanout.MaxRetries,
			InitialInterval: cfg.Fanout.InitialInterval,
			MaxInterval:     cfg.Fanout.MaxInterval,
			MaxElapsed:      cfg.Fanout.MaxElapsed,
		},
	}, tasks.Deps{
		Loader:    computeLoader,
		Transport: transport,
		Finals:    finals,
		Events:    eventBus,
		Metrics:   metricsCollector,
		Logger:    logger,
	})

	validator := orchestrator.NewValidator()

	deps := node.Deps{
		Registry:     cluster.NewRegistry(cfg.Node.Addr, metricsCollector, logger),
		Tasks:        taskManager,
		Orchestrator: orchestrator.NewOrchestrator(validator, logger),
		Validator:    validator,
		Models:       manifest.NewLoader(logger),
		Compiler:     computeLoader,
		Transport:    transport,
		Prober:       prober,
		Events:       eventBus,
		Logger:       logger,
	}
	if assignments != nil {
		deps.Assignments = assignments
	}

	coordinator := node.NewCoordinator(node.Config{
		Self:         cfg.Node.Addr,
		IsRoot:       isRoot,
		Root:         root,
		ManifestPath: cfg.Planning.ManifestPath,
		NumShards:    cfg.Planning.NumShards,
		Partition: partition.Options{
			Strategy:  partition.Strategy(cfg.Planning.Strategy),
			Tolerance: cfg.Planning.Tolerance,
		},
		Format:        cfg.Planning.Format,
		ProbeInterval: cfg.Timeouts.ProbeInterval,
	}, deps)

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		taskManager.Queue(),
		taskManager,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Cluster: coordinator,
		Tasks:   taskManager,
		Workers: workerPool.Health(),
		Metrics: metricsCollector.Handler(),
		Logger:  logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler.HandleRequestStream)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	// Form the cluster in the background; the servers must already answer
	// registrations and probes
	var (
		formCtx    context.Context
		cancelForm context.CancelFunc
	)
	if cfg.Timeouts.FormationTimeout > 0 {
		formCtx, cancelForm = context.WithTimeout(ctx, cfg.Timeouts.FormationTimeout)
	} else {
		formCtx, cancelForm = context.WithCancel(ctx)
	}
	defer cancelForm()

	formErr := make(chan error, 1)
	go func() {
		formErr <- coordinator.Form(formCtx)
	}()

	logger.Info("periphery node started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal or a failed formation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	for waiting := true; waiting; {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			waiting = false
		case err := <-formErr:
			if err != nil {
				logger.Error("cluster formation failed", zap.Error(err))
				exitCode = 1
				waiting = false
				continue
			}
			logger.Info("cluster formed")
			formErr = nil
		}
	}
	cancelForm()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if assignments != nil {
		if err := assignments.Close(); err != nil {
			logger.Error("assignment database close error", zap.Error(err))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("periphery node shut down complete",
		zap.Duration("uptime", time.Since(startedAt)))
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
