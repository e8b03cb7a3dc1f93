package remotedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/types"
)

// GetLeaderboardSettings returns the owner's aggregation preferences.
// Owners without a stored row are opted out by default.
func GetLeaderboardSettings(ownerID string) (types.LeaderboardSettings, error) {
	db := GetDB()
	if db == nil {
		return types.LeaderboardSettings{}, fmt.Errorf("database not initialized")
	}

	var s types.LeaderboardSettings
	err := db.QueryRow(`SELECT participate, hide_identifier FROM leaderboard_prefs WHERE owner_id = ?`, ownerID).
		Scan(&s.Participate, &s.HideIdentifier)
	if err == sql.ErrNoRows {
		return types.LeaderboardSettings{}, nil
	}
	if err != nil {
		return types.LeaderboardSettings{}, fmt.Errorf("failed to read leaderboard prefs: %w", err)
	}
	return s, nil
}

// SetLeaderboardSettings stores the owner's aggregation preferences.
func SetLeaderboardSettings(ownerID string, s types.LeaderboardSettings) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`INSERT INTO leaderboard_prefs (owner_id, participate, hide_identifier, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			participate = excluded.participate,
			hide_identifier = excluded.hide_identifier,
			updated_at = excluded.updated_at`,
		ownerID, s.Participate, s.HideIdentifier, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store leaderboard prefs: %w", err)
	}
	return nil
}

// ParticipantRow is one opted-in account with its computed metric value.
type ParticipantRow struct {
	OwnerID        string
	AccountKey     string
	Value          int64
	HideIdentifier bool
}

// ParticipantCounts computes the per-account record count over opted-in
// owners, optionally restricted to a minimum rarity. This is the raw
// input of a refresh cycle; ranking and masking happen in the
// aggregation component.
func ParticipantCounts(minRarity int) ([]ParticipantRow, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`SELECT r.owner_id, r.account_key, COUNT(*), p.hide_identifier
		FROM remote_records r
		JOIN leaderboard_prefs p ON p.owner_id = r.owner_id AND p.participate
		WHERE r.rarity >= ?
		GROUP BY r.owner_id, r.account_key
		ORDER BY COUNT(*) DESC, r.account_key`, minRarity)
	if err != nil {
		return nil, fmt.Errorf("failed to query participant counts: %w", err)
	}
	defer rows.Close()

	participants := []ParticipantRow{}
	for rows.Next() {
		var row ParticipantRow
		if err := rows.Scan(&row.OwnerID, &row.AccountKey, &row.Value, &row.HideIdentifier); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, row)
	}
	return participants, rows.Err()
}
