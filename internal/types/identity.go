package types

import (
	"fmt"

	"github.com/google/uuid"
)

// recordNamespace is the fixed UUIDv5 namespace for record identities.
// Changing it would re-identify every record ever synced, so it never does.
var recordNamespace = uuid.MustParse("7b1dd5e4-3a94-4f6b-9c12-8f0a52d6b97d")

// RecordUID derives the globally unique identity of a fact record from
// its upstream coordinates. It is a pure function: re-ingesting the same
// upstream fact from any source (direct fetch, upload, download) yields
// the same UID, which is what makes every write path idempotent.
func RecordUID(accountKey string, category Category, seqID int64) string {
	name := fmt.Sprintf("%s|%s|%d", accountKey, category, seqID)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
