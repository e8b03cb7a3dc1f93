package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/authtoken"
	"github.com/nantokaworks/gacha-vault/internal/leaderboard"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

// Server is the remote sync service: upload/download/status plus the
// ranked-view read path. All state lives in the store and the injected
// aggregator; request handling itself is stateless.
type Server struct {
	verifier   authtoken.Verifier
	aggregator *leaderboard.Aggregator
	httpServer *http.Server
}

func New(verifier authtoken.Verifier, aggregator *leaderboard.Aggregator) *Server {
	return &Server{
		verifier:   verifier,
		aggregator: aggregator,
	}
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// Routes builds the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/records/upload", corsMiddleware(s.requireAuth(s.handleUpload)))
	mux.HandleFunc("/api/v1/records/download", corsMiddleware(s.requireAuth(s.handleDownload)))
	mux.HandleFunc("/api/v1/records", corsMiddleware(s.requireAuth(s.handleDeleteRecords)))
	mux.HandleFunc("/api/v1/status", corsMiddleware(s.requireAuth(s.handleStatus)))
	mux.HandleFunc("/api/v1/leaderboard", corsMiddleware(s.handleLeaderboard))
	mux.HandleFunc("/api/v1/leaderboard/settings", corsMiddleware(s.requireAuth(s.handleLeaderboardSettings)))
	mux.HandleFunc("/api/v1/leaderboard/refresh", corsMiddleware(s.requireAuth(s.handleLeaderboardRefresh)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// Start serves until Shutdown.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}

	logger.Info("Sync service listening", zap.Int("port", port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
