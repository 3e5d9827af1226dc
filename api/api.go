// Package api exposes the security guard over HTTP for the fleet client
// shell: authentication, session status, activity signals and the audit
// trail.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/guard"
)

// AuditReader lists stored security events, newest first.
type AuditReader interface {
	List(event string, limit int) ([]audit.Record, error)
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	guard          *guard.Guard
	flow           *guard.AuthFlow
	auditLog       AuditReader
	logger         *slog.Logger
	trustedProxies []netip.Prefix
	basePath       string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request failures.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAuditReader enables GET /security/audit.
func WithAuditReader(r AuditReader) Option {
	return func(a *API) {
		a.auditLog = r
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarding headers are
// believed when deriving the client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithBasePath sets the prefix the router is mounted under, used for the
// documentation links. Defaults to /api/v1.
func WithBasePath(p string) Option {
	return func(a *API) {
		a.basePath = p
	}
}

// New creates a new API instance.
func New(g *guard.Guard, flow *guard.AuthFlow, opts ...Option) *API {
	a := &API{
		guard:    g,
		flow:     flow,
		basePath: "/api/v1",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "api")
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(ClientAgent)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	docsBase := strings.TrimPrefix(a.basePath, "/")
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    docsBase + "/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    docsBase + "/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.RateLimit)

		r.Post("/auth/register", a.Register)
		r.Post("/auth/login", a.Login)

		r.Get("/security/status", a.SecurityStatus)
		r.Post("/security/events", a.ReportEvent)
		r.Post("/security/password-strength", a.PasswordStrength)

		r.Group(func(r chi.Router) {
			r.Use(a.RequireIdentity)

			r.Post("/auth/logout", a.Logout)
			r.Post("/security/activity", a.RecordActivity)
			r.Get("/security/audit", a.ListAudit)
		})
	})

	return r
}
