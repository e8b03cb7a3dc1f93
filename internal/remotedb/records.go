package remotedb

import (
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// UpsertAccount registers the account under the owner if absent and
// refreshes the rotatable secondary ID when the client sends one.
func UpsertAccount(ownerID string, account types.Account) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	region, uid, err := types.ParseAccountKey(account.Key)
	if err != nil {
		return err
	}
	if account.Region == "" {
		account.Region = region
	}
	if account.UID == "" {
		account.UID = uid
	}

	_, err = db.Exec(`INSERT INTO remote_accounts (owner_id, account_key, uid, region, secondary_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, account_key) DO UPDATE SET
			secondary_id = CASE WHEN excluded.secondary_id != '' THEN excluded.secondary_id ELSE remote_accounts.secondary_id END`,
		ownerID, account.Key, account.UID, account.Region, account.SecondaryID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert remote account: %w", err)
	}
	return nil
}

// InsertRecordsIfAbsent applies the identity rule for one owner's batch
// and returns the authoritative count of newly persisted records. The
// record UID is always re-derived from the identity fields here; a UID
// carried on the wire is never trusted. A record whose derived UID
// already exists is skipped silently; nothing is ever updated.
func InsertRecordsIfAbsent(ownerID string, records []types.FactRecord) (int, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO remote_records
		(owner_id, record_uid, account_key, category, pool_id, item_id, item_name, rarity, seq_id, happened_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		// クライアント生成のUIDは使わず、必ずサーバー側で導出し直す
		uid := types.RecordUID(r.AccountKey, r.Category, r.SeqID)
		res, err := stmt.Exec(ownerID, uid, r.AccountKey, string(r.Category), r.PoolID, r.ItemID,
			r.ItemName, r.Rarity, r.SeqID, r.HappenedAt.UnixMilli(), r.FetchedAt.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("failed to insert record %s: %w", uid, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}

	if inserted > 0 {
		logger.Debug("Persisted uploaded records",
			zap.String("owner_id", ownerID),
			zap.Int("inserted", inserted),
			zap.Int("batch", len(records)))
	}
	return inserted, nil
}

// QueryRecords returns the owner's records for one account. When since
// is non-nil only records with happened_at >= since are returned; a nil
// since returns the full set. An optional category narrows the result.
func QueryRecords(ownerID, accountKey string, category *types.Category, since *time.Time) ([]types.FactRecord, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT record_uid, account_key, category, pool_id, item_id, item_name, rarity, seq_id, happened_at, fetched_at
		FROM remote_records WHERE owner_id = ? AND account_key = ?`
	args := []any{ownerID, accountKey}
	if category != nil {
		query += ` AND category = ?`
		args = append(args, string(*category))
	}
	if since != nil {
		query += ` AND happened_at >= ?`
		args = append(args, since.UnixMilli())
	}
	query += ` ORDER BY category, seq_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []types.FactRecord{}
	for rows.Next() {
		var r types.FactRecord
		var cat string
		var happenedAt, fetchedAt int64
		if err := rows.Scan(&r.UID, &r.AccountKey, &cat, &r.PoolID, &r.ItemID, &r.ItemName,
			&r.Rarity, &r.SeqID, &happenedAt, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Category = types.Category(cat)
		r.HappenedAt = time.UnixMilli(happenedAt)
		r.FetchedAt = time.UnixMilli(fetchedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListAccountKeys returns every account key the owner has records or a
// registration for, in stable order.
func ListAccountKeys(ownerID string) ([]string, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`SELECT account_key FROM remote_accounts WHERE owner_id = ?
		UNION SELECT DISTINCT account_key FROM remote_records WHERE owner_id = ?
		ORDER BY account_key`, ownerID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan account key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// AccountStatuses summarizes the owner's accounts for the status query.
func AccountStatuses(ownerID string) ([]types.AccountStatus, error) {
	keys, err := ListAccountKeys(ownerID)
	if err != nil {
		return nil, err
	}

	db := GetDB()
	statuses := []types.AccountStatus{}
	for _, key := range keys {
		status := types.AccountStatus{
			AccountKey:       key,
			CountsByCategory: map[types.Category]int{},
		}

		rows, err := db.Query(`SELECT category, COUNT(*), MAX(happened_at)
			FROM remote_records WHERE owner_id = ? AND account_key = ?
			GROUP BY category`, ownerID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to query account status: %w", err)
		}

		var lastFactAt int64
		for rows.Next() {
			var cat string
			var count int
			var maxAt int64
			if err := rows.Scan(&cat, &count, &maxAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan account status: %w", err)
			}
			status.CountsByCategory[types.Category(cat)] = count
			if maxAt > lastFactAt {
				lastFactAt = maxAt
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		if lastFactAt > 0 {
			t := time.UnixMilli(lastFactAt)
			status.LastFactAt = &t
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// DeleteAccountRecords removes one account's records for the owner.
func DeleteAccountRecords(ownerID, accountKey string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM remote_records WHERE owner_id = ? AND account_key = ?`, ownerID, accountKey); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM remote_accounts WHERE owner_id = ? AND account_key = ?`, ownerID, accountKey); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	logger.Info("Deleted remote account records",
		zap.String("owner_id", ownerID), zap.String("account_key", accountKey))
	return nil
}
