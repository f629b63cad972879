package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/notify"
	"github.com/nodeledger/nodeledger/internal/objects"
	"github.com/nodeledger/nodeledger/internal/registry"
	"github.com/nodeledger/nodeledger/internal/router"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("API service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime,
		"object_version", objects.ComputeNodeVersion().String())

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := db.New(startCtx, cfg.Database, logger)
	startCancel()
	if err != nil {
		logger.Fatal("Failed to open compute node store", "error", err)
	}
	defer closeStore()

	logger.Info("Connecting to etcd", "endpoints", cfg.Etcd.Endpoints)
	services, err := registry.NewEtcdServiceRegistry(cfg.Etcd, logger)
	if err != nil {
		logger.Fatal("Failed to connect to etcd", "error", err)
	}
	defer func() { _ = services.Close() }()

	hostname, _ := os.Hostname()
	notifier, err := notify.New(cfg.Notifications, "api."+hostname, logger)
	if err != nil {
		logger.Fatal("Failed to set up notifications", "error", err)
	}

	opts := []objects.Option{objects.WithLogger(logger)}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
		opts = append(opts, objects.WithNotifier(notifier))
	}
	nodes := objects.NewNodes(store, services, opts...)

	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	app := router.New(logger, nodes, services, *cfg)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
