package http

import (
	"context"
	"net/http"
	"strings"

	"fatture/internal/capability"
	"fatture/internal/core"
)

type userContextKey struct{}

// userFrom returns the authenticated user attached by requireAuth.
func userFrom(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(core.User)
	return u, ok
}

// requireAuth resolves the bearer token into a user and capability grant and
// attaches both to the request context. Handlers and the service layer read
// the grant from there; nothing downstream sees the token itself.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fatture"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error: errorDetail{Code: "unauthorized", Message: "missing bearer token"},
			})
			return
		}

		user, grant, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fatture"`)
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = capability.WithGrant(ctx, grant)
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// seesAllRecords reports whether the caller may read beyond their own
// invoices.
func seesAllRecords(ctx context.Context) bool {
	return capability.FromContext(ctx).Has(capability.Required(capability.OpReportAll))
}
