package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphan267/mirrorcast-signal/apis"
	"github.com/tphan267/mirrorcast-signal/pkg/config"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/providers/analytics"
	"github.com/tphan267/mirrorcast-signal/pkg/providers/discovery"
	signalingsvc "github.com/tphan267/mirrorcast-signal/pkg/providers/signaling"
	"github.com/tphan267/mirrorcast-signal/pkg/storage"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configFile  string
		logLevel    string
		mode        string
		showVersion bool
	)
	flag.StringVar(&configFile, "config", "config.yaml", "Path to the configuration file")
	flag.StringVar(&logLevel, "loglevel", "", "Set the log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Run mode (dev, local, production)")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Load configuration
	cfg, err := config.Load(version, configFile, logLevel, mode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create structured logger
	appLogger := logger.NewDefault("MIRRORCAST")
	appLogger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	appLogger.Info("Starting MirrorCast signaling server %s (mode: %s)", version, cfg.Mode)

	// Initialize storage
	store, err := storage.NewSQLiteStorage(cfg.DBPath, appLogger.Named("storage"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Create service registry and register all default services
	registry := createServiceRegistry(store, appLogger, cfg)

	// Initialize all services (binds the WebSocket port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := registry.InitializeAll(ctx); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start runnable services
	if err := registry.StartRunnable(ctx); err != nil {
		log.Fatalf("Failed to start runnable services: %v", err)
	}

	// Create API server
	srv, err := apis.New(registry)
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}

	// Start server in a goroutine
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(cfg.HTTPAddr())
	}()

	printBanner(appLogger, registry, cfg)

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.Info("Received %s, shutting down...", sig)
	case err := <-srvErr:
		appLogger.Error("Discovery API failed: %v", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown error: %v", err)
	}

	// Shutdown all services
	if err := registry.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Service shutdown error: %v", err)
	}

	appLogger.Info("Server exited")
}

// createServiceRegistry creates and populates the service registry with
// default services. Order matters: the signaling hub publishes into
// analytics, so analytics is registered first and stopped last.
func createServiceRegistry(store storage.Storage, log *logger.Logger, cfg *config.Config) *providers.Registry {
	registry := providers.NewRegistry(store, log, cfg)

	registry.MustRegister(analytics.NewService())
	registry.MustRegister(discovery.NewService())
	registry.MustRegister(signalingsvc.NewService())

	return registry
}

func printBanner(l *logger.Logger, registry *providers.Registry, cfg *config.Config) {
	l.Info("WebSocket signaling on %s", cfg.WSAddr())
	l.Info("Discovery API on http://%s", cfg.HTTPAddr())

	disc, err := registry.GetDiscovery()
	if err != nil {
		return
	}
	info := disc.NetworkInfo()
	l.Info("Clients should connect to %s", info.WebSocketURL)
	for _, ip := range info.LocalIPs {
		l.Debug("Local address: %s", ip)
	}
}
