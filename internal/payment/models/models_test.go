package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "regdesk/pkg/domain"
)

func TestSubmissionTransitions(t *testing.T) {
	cases := []struct {
		from, to SubmissionStatus
		allowed  bool
	}{
		{SubmissionPending, SubmissionVerified, true},
		{SubmissionPending, SubmissionRejected, true},
		{SubmissionVerified, SubmissionVerified, true},
		{SubmissionVerified, SubmissionRejected, false},
		{SubmissionRejected, SubmissionRejected, false},
		{SubmissionRejected, SubmissionVerified, false},
		{SubmissionPending, SubmissionPending, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
	assert.False(t, SubmissionStatus("settled").IsValid())
}

func TestRegistrationStatus(t *testing.T) {
	for _, s := range []RegistrationStatus{RegistrationPending, RegistrationVerificationPending, RegistrationPaid, RegistrationManualVerified} {
		assert.True(t, s.IsActive(), s)
	}
	for _, s := range []RegistrationStatus{RegistrationInitiated, RegistrationRejected, RegistrationRefunded} {
		assert.False(t, s.IsActive(), s)
	}
}

func TestRegistrantKey(t *testing.T) {
	team, pid := id.NewTeamID(), id.NewParticipantID()
	assert.Equal(t, "team:"+team.String(), RegistrantKey(team, pid))
	assert.Equal(t, "participant:"+pid.String(), RegistrantKey(id.TeamID{}, pid))
}

func TestFreeMarker(t *testing.T) {
	a, b := NewFreeMarker(), NewFreeMarker()
	assert.NotEqual(t, a, b)
	assert.True(t, IsFreeMarker(a))
	assert.False(t, IsFreeMarker("TXN1"))
}
