package types

import "time"

// Entity is the base type for all Recur entities with timestamps.
// Embed this in your domain types to get automatic timestamp handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with both timestamps set to t.
// Recur stamps entities with the caller-supplied clock, not the wall
// clock, so ledger history stays a pure function of call inputs.
func NewEntity(t time.Time) Entity {
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch updates the UpdatedAt timestamp to t.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t
}
