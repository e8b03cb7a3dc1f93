package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

// CursorState tracks per-installation sync progress. LastCheckedAt
// advances on every successful cycle and only bounds incremental
// queries; LastSyncAt advances only when a cycle actually changed data
// and exists purely for display.
type CursorState struct {
	LastCheckedAt *time.Time `json:"last_checked_at"`
	LastSyncAt    *time.Time `json:"last_sync_at"`
}

// GetCursorState reads the cursor. Both timestamps are nil before the
// first successful cycle.
func GetCursorState() (CursorState, error) {
	db := GetDB()
	if db == nil {
		return CursorState{}, fmt.Errorf("database not initialized")
	}

	var checked, synced sql.NullInt64
	err := db.QueryRow(`SELECT last_checked_at, last_sync_at FROM sync_state WHERE id = 1`).
		Scan(&checked, &synced)
	if err == sql.ErrNoRows {
		return CursorState{}, nil
	}
	if err != nil {
		return CursorState{}, fmt.Errorf("failed to read sync state: %w", err)
	}

	var state CursorState
	if checked.Valid {
		t := time.UnixMilli(checked.Int64)
		state.LastCheckedAt = &t
	}
	if synced.Valid {
		t := time.UnixMilli(synced.Int64)
		state.LastSyncAt = &t
	}
	return state, nil
}

// AdvanceCursor commits a completed cycle. LastCheckedAt always moves to
// checkedAt; LastSyncAt moves with it only when the cycle changed data.
// The orchestrator calls this exactly once per cycle and never after a
// failure, so a failed cycle is fully retried.
func AdvanceCursor(checkedAt time.Time, changed bool) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	ms := checkedAt.UnixMilli()
	var err error
	if changed {
		_, err = db.Exec(`INSERT INTO sync_state (id, last_checked_at, last_sync_at)
			VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET last_checked_at = excluded.last_checked_at,
				last_sync_at = excluded.last_sync_at`, ms, ms)
	} else {
		_, err = db.Exec(`INSERT INTO sync_state (id, last_checked_at, last_sync_at)
			VALUES (1, ?, NULL)
			ON CONFLICT(id) DO UPDATE SET last_checked_at = excluded.last_checked_at`, ms)
	}
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	logger.Debug("Cursor advanced", zap.Time("checked_at", checkedAt), zap.Bool("changed", changed))
	return nil
}

// MarkForceFull arms a one-shot override: the next download for this
// account must omit the since filter.
func MarkForceFull(accountKey string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`INSERT OR REPLACE INTO sync_force_full (account_key, marked_at)
		VALUES (?, ?)`, accountKey, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark force-full: %w", err)
	}
	return nil
}

// PeekForceFull reports whether the marker is armed without clearing
// it. The orchestrator peeks at the start of a cycle and consumes only
// after the full download succeeded, so a failed cycle keeps the
// marker.
func PeekForceFull(accountKey string) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sync_force_full WHERE account_key = ?`, accountKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to peek force-full marker: %w", err)
	}
	return count > 0, nil
}

// ConsumeForceFull reports whether the marker was set and clears it
// atomically, so it is honored at most once.
func ConsumeForceFull(accountKey string) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	res, err := db.Exec(`DELETE FROM sync_force_full WHERE account_key = ?`, accountKey)
	if err != nil {
		return false, fmt.Errorf("failed to consume force-full marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume force-full marker: %w", err)
	}
	return n > 0, nil
}
