package paths

import (
	"os"
	"path/filepath"
)

const appDirName = "gacha-vault"

// GetDataDir returns the per-user data directory for the agent.
// AGENT_DATA_DIR overrides it, which the tests and portable installs use.
func GetDataDir() string {
	if dir := os.Getenv("AGENT_DATA_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, appDirName)
}

// EnsureDataDirs creates the data directory tree.
func EnsureDataDirs() error {
	return os.MkdirAll(GetDataDir(), 0o755)
}

// GetDBPath returns the agent's sqlite file path.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "agent.db")
}
