// Package domainerrors carries coded errors across service boundaries so the
// transport layer can map them to status codes without string matching.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error identifier. It is returned to
// clients verbatim in the "error" field of the response envelope.
type Code string

// Generic error classes.
const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Team registry failures.
const (
	CodeAlreadyOnTeam       Code = "already_on_team"
	CodeNotLeader           Code = "not_leader"
	CodeTeamLocked          Code = "team_locked"
	CodeTeamFull            Code = "team_full"
	CodeAlreadyInvited      Code = "already_invited"
	CodeAlreadyRequested    Code = "already_requested"
	CodeTargetOnTeam        Code = "target_on_team"
	CodeInstitutionMismatch Code = "institution_mismatch"
)

// Cart, checkout and reconciliation failures.
const (
	CodeEventUnavailable      Code = "event_unavailable"
	CodeAlreadyRegistered     Code = "already_registered"
	CodeRosterNotInTeam       Code = "roster_not_in_team"
	CodeRosterSizeOutOfBounds Code = "roster_size_out_of_bounds"
	CodeEventAlreadyInCart    Code = "event_already_in_cart"
	CodeCartEmpty             Code = "cart_empty"
	CodeDuplicateTransaction  Code = "duplicate_transaction"
	CodeInvalidTransition     Code = "invalid_transition"
)

// Error is a coded domain error. Err optionally holds the underlying cause,
// which is never exposed to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil err still
// produces a coded error so callers can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or "" for foreign errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps a code to the HTTP status returned to clients.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotLeader:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict,
		CodeAlreadyOnTeam,
		CodeTeamLocked,
		CodeTeamFull,
		CodeAlreadyInvited,
		CodeAlreadyRequested,
		CodeTargetOnTeam,
		CodeEventAlreadyInCart,
		CodeAlreadyRegistered,
		CodeDuplicateTransaction,
		CodeInvalidTransition,
		CodeEventUnavailable:
		return http.StatusConflict
	case CodeInstitutionMismatch,
		CodeRosterNotInTeam,
		CodeRosterSizeOutOfBounds,
		CodeCartEmpty,
		CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
