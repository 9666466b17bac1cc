package types

import "time"

// Entity carries the bookkeeping timestamps of a persisted record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity stamps both times with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch bumps UpdatedAt.
func (e *Entity) Touch() { e.UpdatedAt = time.Now().UTC() }
