package env

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// ServerValue holds the remote service configuration. The server has no
// settings database; it is configured from the environment only.
type ServerValue struct {
	ServerPort      int
	DBPath          string
	JWTSecret       *string
	RefreshInterval time.Duration
	DebugMode       bool
}

var Server ServerValue

// LoadServerEnv resolves the sync service configuration from the process
// environment (plus .env during development).
func LoadServerEnv() {
	_ = godotenv.Load()

	Server.ServerPort = intOr(os.Getenv("SERVER_PORT"), 8090)
	Server.DBPath = os.Getenv("SERVER_DB_PATH")
	if Server.DBPath == "" {
		Server.DBPath = "vault.db"
	}
	Server.RefreshInterval = time.Duration(intOr(os.Getenv("LEADERBOARD_REFRESH_MINUTES"), 10)) * time.Minute
	Server.DebugMode = os.Getenv("DEBUG_OUTPUT") == "true"

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		Server.JWTSecret = &secret
	} else {
		Server.JWTSecret = nil
	}
}
