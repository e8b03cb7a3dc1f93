package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nantokaworks/gacha-vault/internal/env"
	"github.com/nantokaworks/gacha-vault/internal/localapi"
	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/scheduler"
	"github.com/nantokaworks/gacha-vault/internal/settings"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/shared/paths"
	"github.com/nantokaworks/gacha-vault/internal/syncclient"
	"github.com/nantokaworks/gacha-vault/internal/syncmanager"
	"github.com/nantokaworks/gacha-vault/internal/version"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting gacha-vault agent", zap.String("version", version.Version))

	if err := paths.EnsureDataDirs(); err != nil {
		logger.Fatal("Failed to ensure data directories", zap.Error(err))
	}

	if _, err := localdb.SetupDB(paths.GetDBPath()); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	// リモート未設定（URLまたはトークンなし）の間は同期を無効化する
	var remote *syncclient.Client
	if env.Value.ServerBaseURL != "" && env.Value.SyncToken != nil {
		remote = syncclient.New(env.Value.ServerBaseURL, *env.Value.SyncToken)
	} else {
		logger.Warn("Sync server not configured, running in offline mode")
	}

	enabled := func() bool {
		return env.Value.SyncEnabled && remote != nil
	}

	var manager *syncmanager.Manager
	if remote != nil {
		manager = syncmanager.New(remote, enabled)
	} else {
		manager = syncmanager.New(nil, enabled)
	}

	triggers := syncmanager.NewTriggers(manager, scheduler.NewReal(),
		env.Value.StartupDelay, env.Value.SyncInterval, env.Value.DebounceWindow)
	triggers.Start()

	var proxy localapi.RemoteProxy
	if remote != nil {
		proxy = remote
	}
	api := localapi.New(manager, proxy, settings.NewSettingsManager(localdb.GetDB()))

	go func() {
		if err := api.Start(env.Value.AgentPort); err != nil {
			logger.Fatal("Failed to start agent API", zap.Error(err))
		}
	}()

	logger.Info("Agent started",
		zap.Int("port", env.Value.AgentPort),
		zap.Bool("sync_enabled", enabled()),
		zap.String("installation_id", env.Value.InstallationID))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	triggers.Stop()
	if err := api.Shutdown(context.Background()); err != nil {
		logger.Warn("Agent API shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
