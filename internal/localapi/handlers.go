package localapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/settings"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/status"
	"github.com/nantokaworks/gacha-vault/internal/syncmanager"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status.GetSyncStatus())
}

// handleSyncNow runs one cycle through the same guarded entry point the
// automatic triggers use.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	changed, err := s.manager.SyncNow(r.Context())
	switch {
	case errors.Is(err, syncmanager.ErrBusy):
		http.Error(w, "Sync already running", http.StatusConflict)
		return
	case errors.Is(err, syncmanager.ErrDisabled):
		http.Error(w, "Sync is disabled", http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, "Sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"changed": changed})
}

type accountSummary struct {
	types.Account
	RecordCount int `json:"record_count"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := localdb.GetAccounts()
		if err != nil {
			logger.Error("Failed to list accounts", zap.Error(err))
			http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
			return
		}

		summaries := make([]accountSummary, 0, len(accounts))
		for _, a := range accounts {
			count, err := localdb.CountRecords(a.Key)
			if err != nil {
				logger.Error("Failed to count records", zap.Error(err), zap.String("account_key", a.Key))
				http.Error(w, "Failed to count records", http.StatusInternalServerError)
				return
			}
			summaries = append(summaries, accountSummary{Account: a, RecordCount: count})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summaries)

	case http.MethodDelete:
		accountKey := r.URL.Query().Get("account_key")
		if _, _, err := types.ParseAccountKey(accountKey); err != nil {
			http.Error(w, "Invalid account key", http.StatusBadRequest)
			return
		}
		if err := localdb.DeleteAccount(accountKey); err != nil {
			logger.Error("Failed to delete account", zap.Error(err), zap.String("account_key", accountKey))
			http.Error(w, "Failed to delete account", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRedownload arms the one-shot full-download marker so the next
// cycle rebuilds this account from the server.
func (s *Server) handleRedownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountKey := r.URL.Query().Get("account_key")
	if _, _, err := types.ParseAccountKey(accountKey); err != nil {
		http.Error(w, "Invalid account key", http.StatusBadRequest)
		return
	}

	if err := localdb.MarkForceFull(accountKey); err != nil {
		logger.Error("Failed to mark force-full", zap.Error(err), zap.String("account_key", accountKey))
		http.Error(w, "Failed to mark account", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountKey := r.URL.Query().Get("account_key")
	if _, _, err := types.ParseAccountKey(accountKey); err != nil {
		http.Error(w, "Invalid account key", http.StatusBadRequest)
		return
	}

	records, err := localdb.GetRecords(accountKey)
	if err != nil {
		logger.Error("Failed to query records", zap.Error(err), zap.String("account_key", accountKey))
		http.Error(w, "Failed to query records", http.StatusInternalServerError)
		return
	}

	if raw := r.URL.Query().Get("category"); raw != "" {
		category := types.Category(raw)
		if !category.Valid() {
			http.Error(w, "Invalid category", http.StatusBadRequest)
			return
		}
		filtered := records[:0]
		for _, rec := range records {
			if rec.Category == category {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := s.settings.GetAllSettings()
		if err != nil {
			logger.Error("Failed to read settings", zap.Error(err))
			http.Error(w, "Failed to read settings", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(all)

	case http.MethodPut:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		for key, value := range updates {
			if _, ok := settings.DefaultSettings[key]; !ok {
				http.Error(w, "Unknown setting: "+key, http.StatusBadRequest)
				return
			}
			if err := s.settings.SetSetting(key, value); err != nil {
				logger.Error("Failed to save setting", zap.Error(err), zap.String("key", key))
				http.Error(w, "Failed to save setting", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
