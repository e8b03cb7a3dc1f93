package localdb

import (
	"database/sql"
	"fmt"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	DBClient = db

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS accounts (
		account_key TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		region TEXT NOT NULL,
		secondary_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts table: %w", err)
	}

	// fact_recordsは追記専用。record_uidが同一なら再取り込みは常にno-op。
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS fact_records (
		record_uid TEXT PRIMARY KEY,
		account_key TEXT NOT NULL,
		category TEXT NOT NULL,
		pool_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		rarity INTEGER NOT NULL,
		seq_id INTEGER NOT NULL,
		happened_at INTEGER NOT NULL,
		fetched_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fact_records table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_fact_records_account
		ON fact_records (account_key, category, seq_id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fact_records index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_fact_records_fetched
		ON fact_records (account_key, fetched_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fact_records fetched index: %w", err)
	}

	// 同期カーソル（1行のみ）
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_checked_at INTEGER,
		last_sync_at INTEGER
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_state table: %w", err)
	}

	// 強制フルダウンロードの一回限りマーカー
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sync_force_full (
		account_key TEXT PRIMARY KEY,
		marked_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_force_full table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create settings table", zap.Error(err))
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return db, nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	return DBClient
}
