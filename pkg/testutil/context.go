package testutil

import (
	"net/http"
	"time"

	id "regdesk/pkg/domain"
	"regdesk/pkg/requestcontext"
)

// WithParticipant makes req look like it passed the identity and participant
// middleware for the given participant.
func WithParticipant(req *http.Request, externalID string, participantID id.ParticipantID) *http.Request {
	ctx := requestcontext.WithExternalID(req.Context(), externalID)
	if !participantID.IsNil() {
		ctx = requestcontext.WithParticipantID(ctx, participantID)
	}
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
