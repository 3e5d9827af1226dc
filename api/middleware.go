package api

import (
	"net/http"
	"strings"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/identity"
)

// RequireIdentity answers 401 unless an identity is signed in. The host
// serves a single principal, so routes that act on or reveal that
// principal's session are closed while nobody is signed in.
func (a *API) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.flow.Authenticated() {
			a.mapError(w, r, identity.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientAgent records the caller's User-Agent on the request context so
// that security events carry it.
func ClientAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.UserAgent(); ua != "" {
			r = r.WithContext(audit.WithClientAgent(r.Context(), ua))
		}
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
