// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Record is a row that owns a directory of images.
type Record struct {
	ID        uuid.UUID `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// Files holds the uploads of the current request keyed by attribute
	// name: an images.Source or []images.Source. Never persisted.
	Files map[string]any `db:"-"`
}

func (r *Record) PrimaryKey() string {
	return r.ID.String()
}

func (r *Record) Attribute(name string) any {
	return r.Files[name]
}
