package settings

import (
	"database/sql"
	"fmt"
	"time"
)

type SettingType string

const (
	SettingTypeNormal SettingType = "normal"
	SettingTypeSecret SettingType = "secret"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// 同期サーバー設定（機密情報を含む）
	"SYNC_SERVER_URL": {
		Key: "SYNC_SERVER_URL", Value: "", Type: SettingTypeNormal, Required: true,
		Description: "Base URL of the remote sync service",
	},
	"SYNC_TOKEN": {
		Key: "SYNC_TOKEN", Value: "", Type: SettingTypeSecret, Required: true,
		Description: "Bearer token for the remote sync service",
	},
	"SYNC_ENABLED": {
		Key: "SYNC_ENABLED", Value: "true", Type: SettingTypeNormal, Required: false,
		Description: "Enable background synchronization",
	},

	// 動作設定
	"SYNC_INTERVAL_MINUTES": {
		Key: "SYNC_INTERVAL_MINUTES", Value: "30", Type: SettingTypeNormal, Required: false,
		Description: "Periodic sync interval in minutes",
	},
	"SYNC_STARTUP_DELAY_SECONDS": {
		Key: "SYNC_STARTUP_DELAY_SECONDS", Value: "10", Type: SettingTypeNormal, Required: false,
		Description: "Delay before the one-time startup sync",
	},
	"SYNC_DEBOUNCE_SECONDS": {
		Key: "SYNC_DEBOUNCE_SECONDS", Value: "5", Type: SettingTypeNormal, Required: false,
		Description: "Debounce window for local-change triggered sync",
	},

	// エージェント設定
	"AGENT_PORT": {
		Key: "AGENT_PORT", Value: "8980", Type: SettingTypeNormal, Required: false,
		Description: "Local agent API port",
	},
	"INSTALLATION_ID": {
		Key: "INSTALLATION_ID", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Stable identifier of this installation (generated on first run)",
	},
	"DEBUG_OUTPUT": {
		Key: "DEBUG_OUTPUT", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable debug output",
	},
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String

		// 機密情報も実際の値を返す（フロントエンドでマスク処理）
		s.HasValue = s.Value != ""

		settings[s.Key] = s
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 実際の値を取得（マスクなし）- 内部処理用
func (sm *SettingsManager) GetRealValue(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}
