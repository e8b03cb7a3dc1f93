package localapi

import (
	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/status"
)

type dataChangedEvent struct {
	AccountKey string `json:"account_key,omitempty"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// startEvents bridges sync status changes and record store changes onto
// the WebSocket. Data-changed bursts (a sync cycle inserting per-account
// batches, rapid local imports) are debounced into one broadcast.
func (s *Server) startEvents() {
	status.RegisterSyncStatusChangeCallback(func(st status.SyncStatus) {
		s.hub.broadcastJSON("sync_status", st)
	})

	s.stopEvents = localdb.OnChange(func(ev localdb.ChangeEvent) {
		// 由来を問わず通知する（UIは同期由来の変更でも再描画したい）
		event := dataChangedEvent{AccountKey: ev.AccountKey, Deleted: ev.Deleted}
		s.dataDebounce(func() {
			s.hub.broadcastJSON("data_changed", event)
		})
	})
}
