package domain

import (
	"strings"

	dErrors "regdesk/pkg/domain-errors"
)

// TrackType partitions the team namespace. A participant may lead or belong to
// at most one team per track.
//
// Usage: construct via ParseTrackType at trust boundaries; direct casting
// bypasses validation.
type TrackType string

const (
	// TrackStandard teams are institution-bound: every member shares the
	// leader's institution.
	TrackStandard TrackType = "standard"
	// TrackOpen teams may mix institutions.
	TrackOpen TrackType = "open"
)

var validTrackTypes = map[TrackType]bool{
	TrackStandard: true,
	TrackOpen:     true,
}

// ParseTrackType constructs a TrackType from external input.
func ParseTrackType(s string) (TrackType, error) {
	t := TrackType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return "", dErrors.New(dErrors.CodeValidation, "track is required")
	}
	if !validTrackTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid track: "+s)
	}
	return t, nil
}

func (t TrackType) IsValid() bool {
	return validTrackTypes[t]
}

// RequiresSameInstitution reports whether members must share the leader's institution.
func (t TrackType) RequiresSameInstitution() bool {
	return t == TrackStandard
}

func (t TrackType) String() string {
	return string(t)
}

// TrackTypes returns every supported track.
func TrackTypes() []TrackType {
	return []TrackType{TrackStandard, TrackOpen}
}
