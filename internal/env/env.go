package env

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/settings"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

// EnvValue holds the resolved agent configuration. Settings stored in the
// local database win over process environment variables; the environment
// is only a seed for fresh installations.
type EnvValue struct {
	DebugMode      bool
	AgentPort      int
	ServerBaseURL  string
	SyncToken      *string
	SyncEnabled    bool
	SyncInterval   time.Duration
	StartupDelay   time.Duration
	DebounceWindow time.Duration
	InstallationID string
}

var Value EnvValue

// LoadEnv resolves the agent configuration. Must run after the local
// database is initialized because settings live there.
func LoadEnv() {
	// .envは開発時のみ存在する（無くてもエラーにしない）
	_ = godotenv.Load()

	db := localdb.GetDB()
	sm := settings.NewSettingsManager(db)

	get := func(key string) string {
		if v, err := sm.GetRealValue(key); err == nil && v != "" {
			return v
		}
		return os.Getenv(key)
	}

	Value.DebugMode = get("DEBUG_OUTPUT") == "true"
	Value.AgentPort = intOr(get("AGENT_PORT"), 8980)
	Value.ServerBaseURL = get("SYNC_SERVER_URL")
	Value.SyncEnabled = get("SYNC_ENABLED") != "false"
	Value.SyncInterval = time.Duration(intOr(get("SYNC_INTERVAL_MINUTES"), 30)) * time.Minute
	Value.StartupDelay = time.Duration(intOr(get("SYNC_STARTUP_DELAY_SECONDS"), 10)) * time.Second
	Value.DebounceWindow = time.Duration(intOr(get("SYNC_DEBOUNCE_SECONDS"), 5)) * time.Second

	if token := get("SYNC_TOKEN"); token != "" {
		Value.SyncToken = &token
	} else {
		Value.SyncToken = nil
	}

	Value.InstallationID = get("INSTALLATION_ID")
	if Value.InstallationID == "" {
		id, err := gonanoid.New()
		if err != nil {
			logger.Error("Failed to generate installation ID", zap.Error(err))
			return
		}
		if err := sm.SetSetting("INSTALLATION_ID", id); err != nil {
			logger.Error("Failed to persist installation ID", zap.Error(err))
			return
		}
		Value.InstallationID = id
		logger.Info("Generated new installation ID", zap.String("installation_id", id))
	}
}

func intOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
