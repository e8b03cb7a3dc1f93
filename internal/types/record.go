package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category は記録の種別（キャラクター/武器）
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryWeapon    Category = "weapon"
)

// Categories lists every known category in stable order.
var Categories = []Category{CategoryCharacter, CategoryWeapon}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCharacter, CategoryWeapon:
		return true
	}
	return false
}

// Account is one game-account binding. Key is the stable composite
// identity "region:roleID"; SecondaryID may rotate or go missing (e.g.
// after a cross-device restore) without changing Key.
type Account struct {
	Key         string    `json:"key" db:"account_key"`
	UID         string    `json:"uid" db:"uid"`
	Region      string    `json:"region" db:"region"`
	SecondaryID string    `json:"secondary_id,omitempty" db:"secondary_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// FactRecord is one immutable draw outcome. Records are append-only:
// once ingested they are never updated, only bulk-deleted with their
// owning account.
type FactRecord struct {
	UID        string    `json:"uid" db:"record_uid"`
	AccountKey string    `json:"account_key" db:"account_key"`
	Category   Category  `json:"category" db:"category"`
	PoolID     string    `json:"pool_id" db:"pool_id"`
	ItemID     string    `json:"item_id" db:"item_id"`
	ItemName   string    `json:"item_name" db:"item_name"`
	Rarity     int       `json:"rarity" db:"rarity"`
	SeqID      int64     `json:"seq_id" db:"seq_id"`
	HappenedAt time.Time `json:"happened_at" db:"happened_at"`
	FetchedAt  time.Time `json:"fetched_at" db:"fetched_at"`
}

// ErrInvalidAccountKey is returned for malformed composite account keys.
var ErrInvalidAccountKey = errors.New("invalid account key")

// ParseAccountKey splits a composite "region:roleID" key. Both parts
// must be non-empty; the roleID part may not contain ':'.
func ParseAccountKey(key string) (region, roleID string, err error) {
	region, roleID, ok := strings.Cut(key, ":")
	if !ok || region == "" || roleID == "" || strings.Contains(roleID, ":") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAccountKey, key)
	}
	return region, roleID, nil
}

// AccountKey builds the composite key from its parts.
func AccountKey(region, roleID string) string {
	return region + ":" + roleID
}
