package webserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/remotedb"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// handleUpload persists one account's batch under the insert-if-absent
// identity rule and reports the authoritative uploaded count.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerIdentity(r)

	var req types.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// 不正なアカウントキーは呼び出し側のバグ（リトライ対象外）
	if _, _, err := types.ParseAccountKey(req.AccountKey); err != nil {
		http.Error(w, "Invalid account key", http.StatusBadRequest)
		return
	}
	for _, rec := range req.Records {
		if rec.AccountKey != req.AccountKey {
			http.Error(w, "Record account key does not match request", http.StatusBadRequest)
			return
		}
		if !rec.Category.Valid() {
			http.Error(w, "Invalid record category", http.StatusBadRequest)
			return
		}
		// UIDは識別フィールドから一意に決まる。食い違う値を送る
		// クライアントは自身のバグなので弾く
		if rec.UID != "" && rec.UID != types.RecordUID(rec.AccountKey, rec.Category, rec.SeqID) {
			http.Error(w, "Record UID does not match its identity fields", http.StatusBadRequest)
			return
		}
	}

	if err := remotedb.UpsertAccount(identity.OwnerID, types.Account{
		Key:         req.AccountKey,
		SecondaryID: req.SecondaryID,
	}); err != nil {
		logger.Error("Failed to upsert account", zap.Error(err))
		http.Error(w, "Failed to persist account", http.StatusInternalServerError)
		return
	}

	inserted, err := remotedb.InsertRecordsIfAbsent(identity.OwnerID, req.Records)
	if err != nil {
		logger.Error("Failed to persist uploaded records", zap.Error(err))
		http.Error(w, "Failed to persist records", http.StatusInternalServerError)
		return
	}

	resp := types.UploadResponse{
		Uploaded: inserted,
		Skipped:  len(req.Records) - inserted,
		Total:    len(req.Records),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleDownload returns one account's records, optionally bounded by a
// since timestamp (happened_at >= since). No since means the full set.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerIdentity(r)

	accountKey := r.URL.Query().Get("account_key")
	if _, _, err := types.ParseAccountKey(accountKey); err != nil {
		http.Error(w, "Invalid account key", http.StatusBadRequest)
		return
	}

	var category *types.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := types.Category(raw)
		if !c.Valid() {
			http.Error(w, "Invalid category", http.StatusBadRequest)
			return
		}
		category = &c
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "Invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = &t
	}

	records, err := remotedb.QueryRecords(identity.OwnerID, accountKey, category, since)
	if err != nil {
		logger.Error("Failed to query records", zap.Error(err))
		http.Error(w, "Failed to query records", http.StatusInternalServerError)
		return
	}

	resp := types.DownloadResponse{
		Records:    records,
		Total:      len(records),
		ServerTime: time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleDeleteRecords removes one of the caller's accounts server-side.
func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerIdentity(r)

	accountKey := r.URL.Query().Get("account_key")
	if _, _, err := types.ParseAccountKey(accountKey); err != nil {
		http.Error(w, "Invalid account key", http.StatusBadRequest)
		return
	}

	if err := remotedb.DeleteAccountRecords(identity.OwnerID, accountKey); err != nil {
		logger.Error("Failed to delete account records", zap.Error(err))
		http.Error(w, "Failed to delete records", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus summarizes the caller's accounts on the server.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerIdentity(r)

	statuses, err := remotedb.AccountStatuses(identity.OwnerID)
	if err != nil {
		logger.Error("Failed to build status", zap.Error(err))
		http.Error(w, "Failed to build status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.StatusResponse{Accounts: statuses})
}
