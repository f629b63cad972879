package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodeledger/nodeledger/internal/agent"
	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/notify"
	"github.com/nodeledger/nodeledger/internal/objects"
	"github.com/nodeledger/nodeledger/internal/registry"
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
	logger.Info("Agent starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	host, err := cfg.Agent.ResolveHost()
	if err != nil {
		logger.Fatal("Failed to resolve host name", "error", err)
	}

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

	notifier, err := notify.New(cfg.Notifications, cfg.Agent.Binary+"."+host, logger)
	if err != nil {
		logger.Fatal("Failed to set up notifications", "error", err)
	}

	opts := []objects.Option{objects.WithLogger(logger)}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
		opts = append(opts, objects.WithNotifier(notifier))
	}
	nodes := objects.NewNodes(store, services, opts...)

	registration := registry.NewServiceRegistration(services, objects.Service{
		Host:   host,
		Binary: cfg.Agent.Binary,
		Topic:  cfg.Agent.Topic,
	}, logger)

	a, err := agent.New(cfg.Agent, nodes, registration, logger)
	if err != nil {
		logger.Fatal("Failed to create agent", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("Agent failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Agent exited")
}
