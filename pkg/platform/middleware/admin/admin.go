// Package admin guards organizer-only routes with a role lookup on the
// caller's profile.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

// RoleAdmin grants access to the reconciliation endpoints.
const RoleAdmin = "admin"

// RoleChecker reports whether a participant holds a role.
type RoleChecker interface {
	HasRole(ctx context.Context, participantID id.ParticipantID, role string) (bool, error)
}

// RequireRole allows the request through only when the resolved participant
// holds role.
func RequireRole(checker RoleChecker, role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			participantID := requestcontext.ParticipantID(ctx)
			if participantID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role required"))
				return
			}

			ok, err := checker.HasRole(ctx, participantID, role)
			if err != nil {
				logger.ErrorContext(ctx, "role lookup failed",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "role lookup failed"))
				return
			}
			if !ok {
				logger.WarnContext(ctx, "role check denied",
					"request_id", requestID,
					"participant_id", participantID.String(),
					"role", role,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
