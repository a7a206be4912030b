// Package httptransport assembles the module handlers into one chi router
// and places each route group behind the middleware it needs.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/platform/metrics"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	adminmw "regdesk/pkg/platform/middleware/admin"
	authmw "regdesk/pkg/platform/middleware/auth"
	"regdesk/pkg/platform/middleware/request"
	"regdesk/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// Handlers groups the module handlers by the access they require.
type Handlers struct {
	// Public routes need no identity.
	Public []Registrar
	// Identified routes need a verified token but not a completed profile.
	Identified []Registrar
	// Participant routes need a completed profile.
	Participant []Registrar
	// Admin routes need a completed profile holding the admin role.
	Admin []Registrar
}

// Identity bundles what the auth middleware needs.
type Identity struct {
	Verifier     authmw.TokenVerifier
	Participants authmw.ParticipantResolver
	Roles        adminmw.RoleChecker
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

func NewRouter(h Handlers, identity Identity, m *metrics.Metrics, checks map[string]HealthCheck, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(requesttime.Middleware)
	r.Use(m.LatencyMiddleware)

	r.Get("/healthz", healthHandler(checks, logger))
	r.Handle("/metrics", metrics.Handler())
	for _, reg := range h.Public {
		reg.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireIdentity(identity.Verifier, logger))
		r.Use(authmw.ResolveParticipant(identity.Participants, logger))
		for _, reg := range h.Identified {
			reg.Register(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireParticipant)
			for _, reg := range h.Participant {
				reg.Register(r)
			}

			r.Group(func(r chi.Router) {
				r.Use(adminmw.RequireRole(identity.Roles, adminmw.RoleAdmin, logger))
				for _, reg := range h.Admin {
					reg.Register(r)
				}
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{"healthy": healthy, "dependencies": status})
	}
}
