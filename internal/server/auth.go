package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hikaru/kioku/internal/tracing"
)

// ownerHeader carries the owner id resolved by the fronting identity layer.
const ownerHeader = "X-Kioku-Owner"

// authenticated wraps a handler with bearer-token and owner checks, and
// stamps a request id onto the context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkToken(bearerToken(r)) {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			writeError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
			return
		}

		ctx := tracing.NewRequestContext(r.Context())
		ctx = tracing.WithOwnerID(ctx, owner)
		next(w, r.WithContext(ctx))
	}
}

// checkToken compares in constant time to keep token probing timing-blind.
func (s *Server) checkToken(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.authToken), []byte(token)) == 1
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	// Websocket clients from browsers cannot set headers.
	return r.URL.Query().Get("token")
}
