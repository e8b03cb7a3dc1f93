package localdb

import (
	"fmt"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// UpsertAccount creates the account if absent. The composite key is
// immutable; only the rotatable secondary ID is refreshed on conflict,
// and only when the new value is non-empty.
func UpsertAccount(account types.Account) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, _, err := types.ParseAccountKey(account.Key); err != nil {
		return err
	}

	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(`INSERT INTO accounts (account_key, uid, region, secondary_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_key) DO UPDATE SET
			secondary_id = CASE WHEN excluded.secondary_id != '' THEN excluded.secondary_id ELSE accounts.secondary_id END`,
		account.Key, account.UID, account.Region, account.SecondaryID, createdAt.UnixMilli())
	if err != nil {
		logger.Error("Failed to upsert account", zap.Error(err), zap.String("account_key", account.Key))
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// GetAccounts returns all local accounts in stable key order.
func GetAccounts() ([]types.Account, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`SELECT account_key, uid, region, secondary_id, created_at
		FROM accounts ORDER BY account_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []types.Account{}
	for rows.Next() {
		var a types.Account
		var createdAt int64
		if err := rows.Scan(&a.Key, &a.UID, &a.Region, &a.SecondaryID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount returns one account, or sql.ErrNoRows when absent.
func GetAccount(accountKey string) (*types.Account, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var a types.Account
	var createdAt int64
	err := db.QueryRow(`SELECT account_key, uid, region, secondary_id, created_at
		FROM accounts WHERE account_key = ?`, accountKey).
		Scan(&a.Key, &a.UID, &a.Region, &a.SecondaryID, &createdAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMilli(createdAt)
	return &a, nil
}

// DeleteAccount removes the account, all of its records, and any pending
// force-full marker. This is the only delete path records have.
func DeleteAccount(accountKey string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fact_records WHERE account_key = ?`, accountKey); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sync_force_full WHERE account_key = ?`, accountKey); err != nil {
		return fmt.Errorf("failed to delete force-full marker: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM accounts WHERE account_key = ?`, accountKey); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	logger.Info("Deleted account and its records", zap.String("account_key", accountKey))
	notifyChange(ChangeEvent{Origin: OriginLocal, AccountKey: accountKey, Deleted: true})
	return nil
}
