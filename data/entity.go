// Package data provides the relational persistence layer: a database
// context, generic repositories and query specifications.
package data

import "time"

// Entity is a persisted record with a string identifier.
type Entity interface {
	TableName() string
	GetID() string
	SetID(id string)
	// Stamp records a write at now.
	Stamp(now time.Time)
}

// BaseEntity carries the columns every entity shares. Embed it and add a
// TableName method.
type BaseEntity struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	TenantID  *string   `db:"tenant_id"`
}

func (e *BaseEntity) GetID() string {
	return e.ID
}

func (e *BaseEntity) SetID(id string) {
	e.ID = id
}

func (e *BaseEntity) Stamp(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}
