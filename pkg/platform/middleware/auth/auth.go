package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

// TokenVerifier validates the bearer token minted by the identity provider.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*IdentityClaims, error)
}

// IdentityClaims is what the middleware needs from a verified token.
type IdentityClaims struct {
	Subject string
	Email   string
	Name    string
}

// ParticipantResolver maps an external identity to a participant, if one has
// completed a profile.
type ParticipantResolver interface {
	ResolveParticipantID(ctx context.Context, externalID string) (id.ParticipantID, bool, error)
}

// RequireIdentity verifies the bearer token and stores its subject as the
// caller's external id, along with any email and name it carries.
func RequireIdentity(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil || claims.Subject == "" {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithExternalID(ctx, claims.Subject)
			ctx = requestcontext.WithHint(ctx, requestcontext.IdentityHint{Email: claims.Email, Name: claims.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveParticipant looks up the participant behind the external id. Callers
// without a completed profile pass through with a nil participant id.
func ResolveParticipant(resolver ParticipantResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			participantID, found, err := resolver.ResolveParticipantID(ctx, requestcontext.ExternalID(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve participant",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to resolve participant"))
				return
			}
			if found {
				ctx = requestcontext.WithParticipantID(ctx, participantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParticipant rejects callers that have not completed a profile.
func RequireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.ParticipantID(r.Context()).IsNil() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "complete your profile first"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
