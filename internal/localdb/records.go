package localdb

import (
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// InsertRecordsIfAbsent persists records under the identity rule: the
// UID is derived from the identity fields, insert if absent, otherwise
// no-op, never update, never error. A UID already set on the incoming
// record is ignored. Returns the number of newly inserted rows. When
// anything was inserted a change event tagged with origin is emitted.
func InsertRecordsIfAbsent(records []types.FactRecord, origin ChangeOrigin) (int, error) {
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

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO fact_records
		(record_uid, account_key, category, pool_id, item_id, item_name, rarity, seq_id, happened_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	accountKey := ""
	for _, r := range records {
		uid := types.RecordUID(r.AccountKey, r.Category, r.SeqID)
		res, err := stmt.Exec(uid, r.AccountKey, string(r.Category), r.PoolID, r.ItemID, r.ItemName,
			r.Rarity, r.SeqID, r.HappenedAt.UnixMilli(), r.FetchedAt.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("failed to insert record %s: %w", uid, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
		accountKey = r.AccountKey
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}

	if inserted > 0 {
		logger.Debug("Inserted records",
			zap.Int("inserted", inserted),
			zap.Int("batch", len(records)),
			zap.String("origin", string(origin)))
		notifyChange(ChangeEvent{Origin: origin, AccountKey: accountKey, Inserted: inserted})
	}
	return inserted, nil
}

// GetRecords returns every record for the account ordered by category
// and sequence number. An empty accountKey returns the whole store.
func GetRecords(accountKey string) ([]types.FactRecord, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT record_uid, account_key, category, pool_id, item_id, item_name, rarity, seq_id, happened_at, fetched_at
		FROM fact_records`
	args := []any{}
	if accountKey != "" {
		query += ` WHERE account_key = ?`
		args = append(args, accountKey)
	}
	query += ` ORDER BY account_key, category, seq_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRecordsFetchedAfter returns the account's records whose local
// ingestion timestamp is strictly greater than since. This is the
// upload candidate set.
func GetRecordsFetchedAfter(accountKey string, since time.Time) ([]types.FactRecord, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`SELECT record_uid, account_key, category, pool_id, item_id, item_name, rarity, seq_id, happened_at, fetched_at
		FROM fact_records
		WHERE account_key = ? AND fetched_at > ?
		ORDER BY category, seq_id`, accountKey, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query new records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountRecords returns the number of stored records for the account.
func CountRecords(accountKey string) (int, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM fact_records WHERE account_key = ?`, accountKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]types.FactRecord, error) {
	records := []types.FactRecord{}
	for rows.Next() {
		var r types.FactRecord
		var category string
		var happenedAt, fetchedAt int64
		if err := rows.Scan(&r.UID, &r.AccountKey, &category, &r.PoolID, &r.ItemID, &r.ItemName,
			&r.Rarity, &r.SeqID, &happenedAt, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Category = types.Category(category)
		r.HappenedAt = time.UnixMilli(happenedAt)
		r.FetchedAt = time.UnixMilli(fetchedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}
