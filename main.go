package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cryptoTradeSync/config"
	"cryptoTradeSync/internal/adapters/binanceclient"
	"cryptoTradeSync/internal/adapters/logger"
	"cryptoTradeSync/internal/adapters/sqlite"
	"cryptoTradeSync/internal/app"
	"cryptoTradeSync/internal/cli"
	"cryptoTradeSync/internal/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		FilePath:  cfg.LogFile,
		Component: "tradesync",
	})
	appLogger.Debug(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		repo.Close()
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.New(registry)

	// 6. Initialize Application Service
	syncService, err := app.NewSyncService(
		cfg,
		appLogger,
		binanceClient,
		repo, // trades
		repo, // checkpoints and staging
		repo, // run audit trail
		syncMetrics,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize sync service")
		repo.Close()
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	// 7. Run the CLI until it finishes or a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(&cli.App{
		Config:   cfg,
		Logger:   appLogger,
		Exchange: binanceClient,
		Trades:   repo,
		Sync:     syncService,
		Registry: registry,
	})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		repo.Close()
		os.Exit(1)
	}
}
