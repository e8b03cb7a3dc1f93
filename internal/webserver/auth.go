package webserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/nantokaworks/gacha-vault/internal/authtoken"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// requireAuth resolves the bearer credential or rejects with 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.resolveIdentity(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	}
}

// resolveIdentity verifies the Authorization header if present.
func (s *Server) resolveIdentity(r *http.Request) (*authtoken.Identity, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, false
	}

	identity, err := s.verifier.Verify(token)
	if err != nil {
		logger.Debug("Rejected bearer token", zap.Error(err))
		return nil, false
	}
	return identity, true
}

// callerIdentity reads the identity stored by requireAuth.
func callerIdentity(r *http.Request) *authtoken.Identity {
	identity, _ := r.Context().Value(identityKey).(*authtoken.Identity)
	return identity
}
