package status

import (
	"sync"
	"time"
)

// SyncStatusChangeCallback is called whenever the sync status changes.
type SyncStatusChangeCallback func(SyncStatus)

// SyncStatus is the user-facing view of the sync engine: whether a
// cycle is running, when data last changed, and the last failure.
type SyncStatus struct {
	Syncing       bool       `json:"syncing"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
}

var (
	mu            sync.RWMutex
	current       SyncStatus
	syncCallbacks []SyncStatusChangeCallback
)

// SetSyncing flips the in-flight flag.
func SetSyncing(syncing bool) {
	mu.Lock()
	current.Syncing = syncing
	mu.Unlock()
	notify()
}

// SetCursor publishes the display timestamps after a committed cycle.
func SetCursor(lastCheckedAt, lastSyncAt *time.Time) {
	mu.Lock()
	current.LastCheckedAt = lastCheckedAt
	current.LastSyncAt = lastSyncAt
	mu.Unlock()
	notify()
}

// SetError retains the last failure for display. An empty message
// clears it.
func SetError(message string) {
	mu.Lock()
	current.LastError = message
	if message == "" {
		current.LastErrorAt = nil
	} else {
		now := time.Now()
		current.LastErrorAt = &now
	}
	mu.Unlock()
	notify()
}

// GetSyncStatus returns a copy of the current status.
func GetSyncStatus() SyncStatus {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// RegisterSyncStatusChangeCallback registers a callback for status changes.
func RegisterSyncStatusChangeCallback(callback SyncStatusChangeCallback) {
	mu.Lock()
	defer mu.Unlock()
	syncCallbacks = append(syncCallbacks, callback)
}

// Reset clears the status. Test helper.
func Reset() {
	mu.Lock()
	current = SyncStatus{}
	syncCallbacks = nil
	mu.Unlock()
}

func notify() {
	mu.RLock()
	snapshot := current
	callbacks := make([]SyncStatusChangeCallback, len(syncCallbacks))
	copy(callbacks, syncCallbacks)
	mu.RUnlock()

	// コールバックはロック外で実行
	for _, callback := range callbacks {
		if callback != nil {
			callback(snapshot)
		}
	}
}
