// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
// Usage in services (read values):
//
//	participantID := requestcontext.ParticipantID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithParticipantID(ctx, participantID)
package requestcontext

import (
	"context"
	"time"

	id "regdesk/pkg/domain"
)

type (
	externalIDKey    struct{}
	identityHintKey  struct{}
	participantIDKey struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyExternalID    = externalIDKey{}
	ContextKeyParticipantID = participantIDKey{}
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// ExternalID retrieves the opaque identity-provider subject from the context.
func ExternalID(ctx context.Context) string {
	if ext, ok := ctx.Value(ContextKeyExternalID).(string); ok {
		return ext
	}
	return ""
}

// WithExternalID injects the identity-provider subject into the context.
func WithExternalID(ctx context.Context, externalID string) context.Context {
	return context.WithValue(ctx, ContextKeyExternalID, externalID)
}

// IdentityHint is the profile data the identity token carried, if any.
type IdentityHint struct {
	Email string
	Name  string
}

// Hint retrieves the identity token's profile hint.
func Hint(ctx context.Context) IdentityHint {
	if h, ok := ctx.Value(identityHintKey{}).(IdentityHint); ok {
		return h
	}
	return IdentityHint{}
}

// WithHint injects the identity token's profile hint into the context.
func WithHint(ctx context.Context, h IdentityHint) context.Context {
	return context.WithValue(ctx, identityHintKey{}, h)
}

// ParticipantID retrieves the resolved participant from the context.
// Returns the nil UUID when the caller has not completed a profile.
func ParticipantID(ctx context.Context) id.ParticipantID {
	if pid, ok := ctx.Value(ContextKeyParticipantID).(id.ParticipantID); ok {
		return pid
	}
	return id.ParticipantID{}
}

// WithParticipantID injects a participant ID into the context.
func WithParticipantID(ctx context.Context, participantID id.ParticipantID) context.Context {
	return context.WithValue(ctx, ContextKeyParticipantID, participantID)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
