package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

func TestNewParticipant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("normalizes fields", func(t *testing.T) {
		p, err := NewParticipant(id.NewParticipantID(), " idp|1 ", " Ana ", "Ana@Example.ORG", " Politehnica ", now)
		require.NoError(t, err)
		assert.Equal(t, "idp|1", p.ExternalID)
		assert.Equal(t, "Ana", p.Name)
		assert.Equal(t, "ana@example.org", p.Email)
		assert.Equal(t, "Politehnica", p.Institution)
		assert.Equal(t, now, p.UpdatedAt)
	})

	cases := map[string][4]string{
		"missing external id": {"", "Ana", "ana@example.org", "UPB"},
		"missing name":        {"idp|1", " ", "ana@example.org", "UPB"},
		"invalid email":       {"idp|1", "Ana", "ana", "UPB"},
		"missing institution": {"idp|1", "Ana", "ana@example.org", ""},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewParticipant(id.NewParticipantID(), in[0], in[1], in[2], in[3], now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestAddEvents_IsSetUnion(t *testing.T) {
	e1, e2 := id.NewEventID(), id.NewEventID()
	p := &Participant{}

	assert.True(t, p.AddEvents([]id.EventID{e1}, []id.EventID{e1}))
	assert.False(t, p.AddEvents([]id.EventID{e1}, []id.EventID{e1}), "replay changes nothing")
	assert.True(t, p.AddEvents([]id.EventID{e2}, nil))

	assert.ElementsMatch(t, []id.EventID{e1, e2}, p.RegisteredEvents)
	assert.Equal(t, []id.EventID{e1}, p.PaidEvents)
	assert.True(t, p.HasPaid(e1))
	assert.False(t, p.HasPaid(e2))
}

func TestSameInstitution(t *testing.T) {
	a := &Participant{Institution: "Politehnica"}
	assert.True(t, a.SameInstitution(&Participant{Institution: "politehnica"}))
	assert.False(t, a.SameInstitution(&Participant{Institution: "UNIBUC"}))
}
