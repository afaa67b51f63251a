package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"schwabgw/internal/api"
	"schwabgw/internal/config"
	"schwabgw/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv(config.GatewayPrefix+"CONFIG"), "YAML config file (optional)")
		envPath    = flag.String("env", ".env", "env file loaded before the environment is read")
	)
	flag.Parse()

	// Existing environment variables win over the file.
	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.LoggerConfig())
	logger.Info("Starting Schwab gateway",
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"account", cfg.Schwab.AccountID,
		"client_id", logger.Redact(cfg.Schwab.ClientID),
	)

	server, err := api.NewServer(cfg)
	if err != nil {
		logger.Error("Failed to create server", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err.Error())
		os.Exit(1)
	}
}
