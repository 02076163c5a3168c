package authbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const identityIDKey contextKey = "authbridge.identityID"

// Middleware resolves the session proof carried by a request into an
// identity id. The proof is read from the Authorization header (bearer
// mode) or the session cookie, whichever the deployment uses; when both
// are configured the header wins.
type Middleware struct {
	Issuer Issuer

	// CookieName is the session-proof cookie; empty disables cookie
	// extraction.
	CookieName string

	// HeaderName defaults to "Authorization"; the value may carry a
	// "Bearer " prefix.
	HeaderName string
}

func (m *Middleware) headerName() string {
	if m.HeaderName == "" {
		return "Authorization"
	}
	return m.HeaderName
}

// IdentityID extracts and validates the proof on r, returning the
// authenticated identity id.
func (m *Middleware) IdentityID(r *http.Request) (int64, error) {
	var candidates []string
	if v := r.Header.Get(m.headerName()); v != "" {
		candidates = append(candidates, strings.TrimPrefix(v, "Bearer "))
	}
	if m.CookieName != "" {
		if cookie, err := r.Cookie(m.CookieName); err == nil && cookie.Value != "" {
			candidates = append(candidates, cookie.Value)
		}
	}
	for _, value := range candidates {
		id, _, err := m.Issuer.Validate(r.Context(), value)
		if err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, NewAuthError(ErrCodeInvalidCredential, "not authenticated", "")
}

// Extract resolves the identity id when a valid proof is present and makes
// it available to downstream handlers via the request context. It never
// rejects; use Require to enforce authentication.
func (m *Middleware) Extract(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := m.IdentityID(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), identityIDKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects unauthenticated requests with 401 and otherwise behaves
// like Extract.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.IdentityID(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "not authenticated",
				"code":  ErrCodeInvalidCredential,
			})
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), identityIDKey, id))
		next.ServeHTTP(w, r)
	})
}

// IdentityIDFromContext returns the authenticated identity id placed in ctx
// by Extract or Require.
func IdentityIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(identityIDKey).(int64)
	return id, ok
}
