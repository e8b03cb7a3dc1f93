package localapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// Leaderboard calls are proxied so the bearer token never leaves the
// agent process.

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.remote == nil {
		http.Error(w, "Not connected to a sync service", http.StatusServiceUnavailable)
		return
	}

	viewType := r.URL.Query().Get("type")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	view, err := s.remote.Leaderboard(r.Context(), viewType, limit)
	if err != nil {
		logger.Warn("Leaderboard proxy failed", zap.Error(err))
		http.Error(w, "Leaderboard query failed", proxyStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (s *Server) handleLeaderboardSettings(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		http.Error(w, "Not connected to a sync service", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		prefs, err := s.remote.GetLeaderboardSettings(r.Context())
		if err != nil {
			logger.Warn("Leaderboard settings proxy failed", zap.Error(err))
			http.Error(w, "Settings query failed", proxyStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(prefs)

	case http.MethodPut:
		var prefs types.LeaderboardSettings
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.remote.SetLeaderboardSettings(r.Context(), prefs); err != nil {
			logger.Warn("Leaderboard settings update failed", zap.Error(err))
			http.Error(w, "Settings update failed", proxyStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func proxyStatus(err error) int {
	switch {
	case types.IsAuthError(err):
		return http.StatusUnauthorized
	case types.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
