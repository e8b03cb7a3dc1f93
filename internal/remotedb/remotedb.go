package remotedb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var DBClient *sql.DB

// SetupDB opens the service store and ensures the schema. Same sqlite
// posture as the agent store: WAL, busy timeout, single writer.
func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	DBClient = db

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS remote_accounts (
		owner_id TEXT NOT NULL,
		account_key TEXT NOT NULL,
		uid TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		secondary_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, account_key)
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote_accounts table: %w", err)
	}

	// 書き込みは (owner, record_uid) キーのinsert-if-absentのみ
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS remote_records (
		owner_id TEXT NOT NULL,
		record_uid TEXT NOT NULL,
		account_key TEXT NOT NULL,
		category TEXT NOT NULL,
		pool_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		rarity INTEGER NOT NULL,
		seq_id INTEGER NOT NULL,
		happened_at INTEGER NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, record_uid)
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote_records table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_remote_records_lookup
		ON remote_records (owner_id, account_key, happened_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote_records index: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS leaderboard_prefs (
		owner_id TEXT PRIMARY KEY,
		participate BOOLEAN NOT NULL DEFAULT false,
		hide_identifier BOOLEAN NOT NULL DEFAULT false,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaderboard_prefs table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS ranked_snapshots (
		view_type TEXT NOT NULL,
		rank INTEGER NOT NULL,
		owner_id TEXT NOT NULL,
		masked_key TEXT NOT NULL,
		value INTEGER NOT NULL,
		cached_at INTEGER NOT NULL,
		PRIMARY KEY (view_type, rank)
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranked_snapshots table: %w", err)
	}

	return db, nil
}

// GetDB returns the current service store connection.
func GetDB() *sql.DB {
	return DBClient
}
