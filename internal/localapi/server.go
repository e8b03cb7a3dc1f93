package localapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bep/debounce"
	"github.com/nantokaworks/gacha-vault/internal/settings"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/syncmanager"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// RemoteProxy is the subset of the sync client the UI is allowed to
// reach through the agent. Keeping the bearer token agent-side means the
// UI never talks to the remote service directly.
type RemoteProxy interface {
	Leaderboard(ctx context.Context, viewType string, limit int) (*types.RankedViewResponse, error)
	GetLeaderboardSettings(ctx context.Context) (*types.LeaderboardSettings, error)
	SetLeaderboardSettings(ctx context.Context, s types.LeaderboardSettings) error
}

// Server is the agent-local API the desktop UI consumes: sync status and
// manual sync, the local record store, settings, and a leaderboard proxy.
type Server struct {
	manager    *syncmanager.Manager
	remote     RemoteProxy
	settings   *settings.SettingsManager
	hub        *wsHub
	httpServer *http.Server

	// data_changedのWSブロードキャストは書き込みバーストをまとめる
	dataDebounce func(func())
	stopEvents   func()
}

func New(manager *syncmanager.Manager, remote RemoteProxy, sm *settings.SettingsManager) *Server {
	return &Server{
		manager:      manager,
		remote:       remote,
		settings:     sm,
		hub:          newWSHub(),
		dataDebounce: debounce.New(500 * time.Millisecond),
	}
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// Routes builds the agent mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync/status", corsMiddleware(s.handleSyncStatus))
	mux.HandleFunc("/api/sync/now", corsMiddleware(s.handleSyncNow))
	mux.HandleFunc("/api/accounts", corsMiddleware(s.handleAccounts))
	mux.HandleFunc("/api/accounts/redownload", corsMiddleware(s.handleRedownload))
	mux.HandleFunc("/api/records", corsMiddleware(s.handleRecords))
	mux.HandleFunc("/api/settings", corsMiddleware(s.handleSettings))
	mux.HandleFunc("/api/leaderboard", corsMiddleware(s.handleLeaderboard))
	mux.HandleFunc("/api/leaderboard/settings", corsMiddleware(s.handleLeaderboardSettings))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// Start begins serving and wires the WS event bridge.
func (s *Server) Start(port int) error {
	s.hub.start()
	s.startEvents()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: s.Routes(),
	}

	logger.Info("Agent API listening", zap.Int("port", port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and the event bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopEvents != nil {
		s.stopEvents()
		s.stopEvents = nil
	}
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
