package syncmanager

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/status"
	"github.com/nantokaworks/gacha-vault/internal/syncclient"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

var (
	// ErrBusy means a cycle was already in flight; the trigger is
	// dropped, never queued.
	ErrBusy = errors.New("sync cycle already in flight")
	// ErrDisabled means prerequisites (enabled, signed in) are not met.
	ErrDisabled = errors.New("sync is disabled")
)

// Manager drives the per-account diff/merge cycle against the remote
// service. Exactly one cycle runs at a time; a cycle runs to completion
// or aborts as a whole, and the cursor only advances on full success.
type Manager struct {
	remote   syncclient.Remote
	enabled  func() bool
	now      func() time.Time
	inFlight atomic.Bool
}

func New(remote syncclient.Remote, enabled func() bool) *Manager {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Manager{
		remote:  remote,
		enabled: enabled,
		now:     time.Now,
	}
}

// SyncNow runs one cycle. Returns whether any data changed. All trigger
// sources funnel through here; concurrent callers get ErrBusy.
func (m *Manager) SyncNow(ctx context.Context) (bool, error) {
	if !m.enabled() {
		return false, ErrDisabled
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return false, ErrBusy
	}
	defer m.inFlight.Store(false)

	status.SetSyncing(true)
	defer status.SetSyncing(false)

	changed, err := m.runCycle(ctx)
	if err != nil {
		logger.Warn("Sync cycle failed", zap.Error(err))
		status.SetError(err.Error())
		return false, err
	}

	status.SetError("")
	return changed, nil
}

func (m *Manager) runCycle(ctx context.Context) (bool, error) {
	cycleStart := m.now()

	// カーソルはサイクル開始時に一度だけ読む
	cursor, err := localdb.GetCursorState()
	if err != nil {
		return false, err
	}
	since := cursor.LastCheckedAt
	if since == nil {
		// 二重タイムスタンプ化の前のインストールとの互換
		since = cursor.LastSyncAt
	}

	accounts, err := localdb.GetAccounts()
	if err != nil {
		return false, err
	}

	var changed bool
	var forcedKeys []string
	if len(accounts) == 0 {
		changed, err = m.restoreFromRemote(ctx)
	} else {
		changed, forcedKeys, err = m.syncAccounts(ctx, accounts, since)
	}
	if err != nil {
		return false, err
	}

	// ここまで来た場合のみコミットする（部分的な前進はしない）。
	// force-fullマーカーもこの成功パスで初めて消費される
	for _, key := range forcedKeys {
		if _, err := localdb.ConsumeForceFull(key); err != nil {
			return false, err
		}
	}
	if err := localdb.AdvanceCursor(cycleStart, changed); err != nil {
		return false, err
	}

	state, err := localdb.GetCursorState()
	if err == nil {
		status.SetCursor(state.LastCheckedAt, state.LastSyncAt)
	}

	logger.Info("Sync cycle completed",
		zap.Bool("changed", changed),
		zap.Int("accounts", len(accounts)))
	return changed, nil
}

// restoreFromRemote is the fresh-device path: no local accounts exist,
// so every account the server reports is recreated as a minimal shell
// and its full history downloaded. Upload is skipped entirely.
func (m *Manager) restoreFromRemote(ctx context.Context) (bool, error) {
	remoteStatus, err := m.remote.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("restore status query: %w", err)
	}

	changed := false
	for _, account := range remoteStatus.Accounts {
		region, roleID, err := types.ParseAccountKey(account.AccountKey)
		if err != nil {
			return false, fmt.Errorf("%w: remote reported malformed key %q", types.ErrConsistency, account.AccountKey)
		}
		if err := localdb.UpsertAccount(types.Account{
			Key:    account.AccountKey,
			UID:    roleID,
			Region: region,
		}); err != nil {
			return false, err
		}

		inserted, err := m.downloadAccount(ctx, account.AccountKey, nil)
		if err != nil {
			return false, err
		}
		if inserted > 0 {
			changed = true
		}
	}
	return changed, nil
}

// syncAccounts runs the sequential per-account loop. Accounts are
// processed in stable key order; the first error aborts the rest of the
// loop and the commit step. Armed force-full markers are honored here
// but only reported back, so the commit step can consume them once the
// whole cycle succeeded and a failed cycle retries the full download.
func (m *Manager) syncAccounts(ctx context.Context, accounts []types.Account, since *time.Time) (bool, []string, error) {
	changed := false
	var forcedKeys []string
	for _, account := range accounts {
		uploaded, err := m.uploadAccount(ctx, account, since)
		if err != nil {
			return false, nil, fmt.Errorf("upload %s: %w", account.Key, err)
		}
		if uploaded > 0 {
			changed = true
		}

		full, forced, err := m.needsFullDownload(account.Key)
		if err != nil {
			return false, nil, err
		}
		if forced {
			forcedKeys = append(forcedKeys, account.Key)
		}
		downloadSince := since
		if full {
			downloadSince = nil
		}

		inserted, err := m.downloadAccount(ctx, account.Key, downloadSince)
		if err != nil {
			return false, nil, fmt.Errorf("download %s: %w", account.Key, err)
		}
		if inserted > 0 {
			changed = true
		}
	}
	return changed, forcedKeys, nil
}

func (m *Manager) uploadAccount(ctx context.Context, account types.Account, since *time.Time) (int, error) {
	var candidates []types.FactRecord
	var err error
	if since != nil {
		candidates, err = localdb.GetRecordsFetchedAfter(account.Key, *since)
	} else {
		// 初回サイクルは全件が未送信候補
		candidates, err = localdb.GetRecords(account.Key)
	}
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// バッチ内のUID重複は送信前に落とす
	seen := make(map[string]bool, len(candidates))
	deduped := candidates[:0]
	for _, r := range candidates {
		if seen[r.UID] {
			continue
		}
		seen[r.UID] = true
		deduped = append(deduped, r)
	}

	resp, err := m.remote.Upload(ctx, types.UploadRequest{
		AccountKey:  account.Key,
		SecondaryID: account.SecondaryID,
		Records:     deduped,
	})
	if err != nil {
		return 0, err
	}

	// 「送った件数」ではなくサーバーが新規保存した件数だけを信じる
	return resp.Uploaded, nil
}

func (m *Manager) needsFullDownload(accountKey string) (full, forced bool, err error) {
	count, err := localdb.CountRecords(accountKey)
	if err != nil {
		return false, false, err
	}
	forced, err = localdb.PeekForceFull(accountKey)
	if err != nil {
		return false, false, err
	}
	return count == 0 || forced, forced, nil
}

func (m *Manager) downloadAccount(ctx context.Context, accountKey string, since *time.Time) (int, error) {
	resp, err := m.remote.Download(ctx, accountKey, since)
	if err != nil {
		return 0, err
	}
	if len(resp.Records) == 0 {
		return 0, nil
	}

	// 同期由来の書き込みはOriginSyncタグ付きで通知される
	return localdb.InsertRecordsIfAbsent(resp.Records, localdb.OriginSync)
}
