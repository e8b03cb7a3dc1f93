package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nantokaworks/gacha-vault/internal/authtoken"
	"github.com/nantokaworks/gacha-vault/internal/env"
	"github.com/nantokaworks/gacha-vault/internal/leaderboard"
	"github.com/nantokaworks/gacha-vault/internal/remotedb"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/version"
	"github.com/nantokaworks/gacha-vault/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting gacha-vault sync service", zap.String("version", version.Version))

	env.LoadServerEnv()
	if env.Server.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	if env.Server.JWTSecret == nil {
		logger.Fatal("JWT_SECRET is required")
	}

	if _, err := remotedb.SetupDB(env.Server.DBPath); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}

	aggregator := leaderboard.NewAggregator(env.Server.RefreshInterval)
	aggregator.Start()
	defer aggregator.Stop()

	server := webserver.New(authtoken.NewHMACVerifier(*env.Server.JWTSecret), aggregator)
	go func() {
		if err := server.Start(env.Server.ServerPort); err != nil {
			logger.Fatal("Failed to start web server", zap.Error(err))
		}
	}()

	logger.Info("Sync service started", zap.Int("port", env.Server.ServerPort))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Warn("Web server shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
