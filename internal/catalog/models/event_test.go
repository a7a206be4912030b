package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

func TestEventValidate(t *testing.T) {
	t.Run("individual events have a roster of one", func(t *testing.T) {
		e := &Event{ID: id.NewEventID(), Title: " Sprint ", Currency: "ron", MinTeamSize: 3, MaxTeamSize: 5}
		require.NoError(t, e.Validate())
		assert.Equal(t, "Sprint", e.Title)
		assert.Equal(t, "RON", e.Currency)
		assert.Equal(t, 1, e.MinTeamSize)
		assert.Equal(t, 1, e.MaxTeamSize)
	})

	t.Run("team bounds must be ordered", func(t *testing.T) {
		e := &Event{ID: id.NewEventID(), Title: "Relay", Currency: "RON", TeamEvent: true, MinTeamSize: 4, MaxTeamSize: 2}
		err := e.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("negative fee is rejected", func(t *testing.T) {
		e := &Event{ID: id.NewEventID(), Title: "Relay", Currency: "RON", Fee: -1}
		assert.Error(t, e.Validate())
	})
}

func TestEventAvailable(t *testing.T) {
	assert.False(t, (&Event{Open: false}).Available())
	assert.True(t, (&Event{Open: true}).Available(), "zero capacity is unlimited")
	assert.True(t, (&Event{Open: true, Capacity: 2, RegisteredCount: 1}).Available())
	assert.False(t, (&Event{Open: true, Capacity: 2, RegisteredCount: 2}).Available())
}

func TestRosterSizeAllowed(t *testing.T) {
	e := &Event{MinTeamSize: 2, MaxTeamSize: 3}
	assert.False(t, e.RosterSizeAllowed(1))
	assert.True(t, e.RosterSizeAllowed(2))
	assert.True(t, e.RosterSizeAllowed(3))
	assert.False(t, e.RosterSizeAllowed(4))
}
