package ledgerflow

import "time"

// Entity carries the bookkeeping timestamps shared by every persisted type.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch sets UpdatedAt to at.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}
