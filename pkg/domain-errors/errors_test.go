package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := New(CodeTeamLocked, "team is locked")

	assert.True(t, HasCode(base, CodeTeamLocked))
	assert.False(t, HasCode(base, CodeTeamFull))
	assert.True(t, HasCode(fmt.Errorf("accept: %w", base), CodeTeamLocked), "fmt wrapping keeps the code visible")

	layered := Wrap(base, CodeConflict, "accept failed")
	assert.True(t, HasCode(layered, CodeConflict))
	assert.True(t, HasCode(layered, CodeTeamLocked), "inner codes are reachable")
	assert.Equal(t, CodeConflict, CodeOf(layered))

	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to save team")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save team: connection reset", err.Error())
	assert.Equal(t, "failed to save team", MessageOf(err))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:           http.StatusBadRequest,
		CodeUnauthorized:         http.StatusUnauthorized,
		CodeNotLeader:            http.StatusForbidden,
		CodeNotFound:             http.StatusNotFound,
		CodeAlreadyOnTeam:        http.StatusConflict,
		CodeDuplicateTransaction: http.StatusConflict,
		CodeInvalidTransition:    http.StatusConflict,
		CodeCartEmpty:            http.StatusUnprocessableEntity,
		CodeInternal:             http.StatusInternalServerError,
		Code("unknown"):          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
