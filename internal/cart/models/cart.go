package models

import (
	"slices"
	"time"

	id "regdesk/pkg/domain"
)

// Item is one event in a cart with the participants it registers. Team items
// register the cart's team.
type Item struct {
	EventID   id.EventID         `json:"event_id"`
	TeamEvent bool               `json:"team_event"`
	RosterIDs []id.ParticipantID `json:"roster_ids"`
	AddedAt   time.Time          `json:"added_at"`
}

// Cart is a participant's pending selection. ExpiresAt is fixed when the
// cart is first created; later additions do not extend it.
type Cart struct {
	ParticipantID id.ParticipantID `json:"participant_id"`
	TeamID        id.TeamID        `json:"team_id"`
	Currency      string           `json:"currency"`
	Items         []Item           `json:"items"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

func New(participantID id.ParticipantID, now time.Time, ttl time.Duration) *Cart {
	return &Cart{
		ParticipantID: participantID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

func (c *Cart) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) HasEvent(eventID id.EventID) bool {
	return slices.ContainsFunc(c.Items, func(it Item) bool { return it.EventID == eventID })
}

// Remove drops the item for eventID, reporting whether it was present. The
// team reference is cleared once no item needs it.
func (c *Cart) Remove(eventID id.EventID) bool {
	before := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(it Item) bool { return it.EventID == eventID })
	if len(c.Items) == before {
		return false
	}
	if !slices.ContainsFunc(c.Items, func(it Item) bool { return it.TeamEvent }) {
		c.TeamID = id.TeamID{}
	}
	if c.IsEmpty() {
		c.Currency = ""
	}
	return true
}

func (c *Cart) EventIDs() []id.EventID {
	out := make([]id.EventID, len(c.Items))
	for i, it := range c.Items {
		out[i] = it.EventID
	}
	return out
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		it.RosterIDs = slices.Clone(it.RosterIDs)
		cp.Items[i] = it
	}
	return &cp
}
