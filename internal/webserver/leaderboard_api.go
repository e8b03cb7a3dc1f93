package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nantokaworks/gacha-vault/internal/leaderboard"
	"github.com/nantokaworks/gacha-vault/internal/remotedb"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// handleLeaderboard serves a published ranked view. The endpoint is
// public; a valid bearer token additionally yields the caller's own
// rank and value.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := leaderboard.ParseViewType(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, "Unknown view type", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ownerID := ""
	if identity, ok := s.resolveIdentity(r); ok {
		ownerID = identity.OwnerID
	}

	resp, err := s.aggregator.Query(view, limit, ownerID)
	if err != nil {
		logger.Error("Failed to query ranked view", zap.Error(err))
		http.Error(w, "Failed to query ranked view", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleLeaderboardSettings reads or updates the caller's aggregation
// preferences.
func (s *Server) handleLeaderboardSettings(w http.ResponseWriter, r *http.Request) {
	identity := callerIdentity(r)

	switch r.Method {
	case http.MethodGet:
		settings, err := remotedb.GetLeaderboardSettings(identity.OwnerID)
		if err != nil {
			logger.Error("Failed to get leaderboard settings", zap.Error(err))
			http.Error(w, "Failed to get settings", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(settings)

	case http.MethodPut:
		var settings types.LeaderboardSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := remotedb.SetLeaderboardSettings(identity.OwnerID, settings); err != nil {
			logger.Error("Failed to set leaderboard settings", zap.Error(err))
			http.Error(w, "Failed to set settings", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(settings)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLeaderboardRefresh forces a recompute. It runs the same code
// path as the timer so forced and scheduled refreshes are idempotent
// with each other.
func (s *Server) handleLeaderboardRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.aggregator.RefreshAll(); err != nil {
		logger.Error("Forced leaderboard refresh failed", zap.Error(err))
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
