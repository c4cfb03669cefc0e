// README: Shared identifier type for rides, groups and cabs.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random UUIDv4 identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Ptr returns a pointer to a copy of id.
func (id ID) Ptr() *ID {
	return &id
}
