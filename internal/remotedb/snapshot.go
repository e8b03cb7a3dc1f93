package remotedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/types"
)

// SnapshotRow is one persisted ranked-view row.
type SnapshotRow struct {
	OwnerID   string
	Rank      int
	MaskedKey string
	Value     int64
	CachedAt  time.Time
}

// ReplaceSnapshot swaps the persisted rows for one view type. Delete and
// insert share a transaction so a concurrent reader sees either the old
// snapshot or the new one, never an empty in-between state.
func ReplaceSnapshot(viewType string, entries []SnapshotRow) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ranked_snapshots WHERE view_type = ?`, viewType); err != nil {
		return fmt.Errorf("failed to clear old snapshot: %w", err)
	}

	for _, e := range entries {
		_, err := tx.Exec(`INSERT INTO ranked_snapshots (view_type, rank, owner_id, masked_key, value, cached_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			viewType, e.Rank, e.OwnerID, e.MaskedKey, e.Value, e.CachedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the published rows for one view type, best rank
// first, limited to limit rows (0 means all).
func GetSnapshot(viewType string, limit int) ([]types.RankedEntry, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT rank, masked_key, value FROM ranked_snapshots
		WHERE view_type = ? ORDER BY rank`
	args := []any{viewType}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	entries := []types.RankedEntry{}
	for rows.Next() {
		var e types.RankedEntry
		if err := rows.Scan(&e.Rank, &e.MaskedKey, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SnapshotCount returns the total number of published rows for a view.
func SnapshotCount(viewType string) (int, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ranked_snapshots WHERE view_type = ?`, viewType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshot rows: %w", err)
	}
	return count, nil
}

// CallerRank finds the owner's best row in a published view, if any.
func CallerRank(viewType, ownerID string) (rank int, value int64, ok bool, err error) {
	db := GetDB()
	if db == nil {
		return 0, 0, false, fmt.Errorf("database not initialized")
	}

	err = db.QueryRow(`SELECT rank, value FROM ranked_snapshots
		WHERE view_type = ? AND owner_id = ? ORDER BY rank LIMIT 1`, viewType, ownerID).
		Scan(&rank, &value)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query caller rank: %w", err)
	}
	return rank, value, true, nil
}
