package component

import (
	"github.com/google/uuid"
)

// NewID mints a globally unique component id prefixed by kind.
func NewID(kind string) string {
	id := uuid.Must(uuid.NewV7()).String()
	if kind == "" {
		return id
	}
	return kind + "-" + id
}
