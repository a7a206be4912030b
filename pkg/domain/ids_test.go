package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "regdesk/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseParticipantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseParticipantID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseParticipantID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseParticipantID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ParticipantID(validUUID), id)
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE teams;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTeamID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errParticipant := ParseParticipantID(validUUID)
		_, errTeam := ParseTeamID(validUUID)
		_, errEvent := ParseEventID(validUUID)
		_, errSubmission := ParseSubmissionID(validUUID)

		require.NoError(t, errParticipant)
		require.NoError(t, errTeam)
		require.NoError(t, errEvent)
		require.NoError(t, errSubmission)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errParticipant := ParseParticipantID(input)
			_, errTeam := ParseTeamID(input)
			_, errEvent := ParseEventID(input)
			_, errSubmission := ParseSubmissionID(input)

			require.Error(t, errParticipant)
			require.Error(t, errTeam)
			require.Error(t, errEvent)
			require.Error(t, errSubmission)
		})
	}
}

func TestIDs_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Team   TeamID    `json:"team_id"`
		Events []EventID `json:"event_ids"`
	}
	in := payload{Team: NewTeamID(), Events: []EventID{NewEventID(), NewEventID()}}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), in.Team.String())

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestIDs_NilRoundTripsAsEmpty(t *testing.T) {
	type payload struct {
		Team TeamID `json:"team_id"`
	}
	raw, err := json.Marshal(payload{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"team_id":""}`, string(raw))

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, out.Team.IsNil())
}

func TestParseTrackType(t *testing.T) {
	track, err := ParseTrackType(" Standard ")
	require.NoError(t, err)
	assert.Equal(t, TrackStandard, track)
	assert.True(t, track.RequiresSameInstitution())

	open, err := ParseTrackType("open")
	require.NoError(t, err)
	assert.False(t, open.RequiresSameInstitution())

	_, err = ParseTrackType("mixed")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
