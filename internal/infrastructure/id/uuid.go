package id

import "github.com/google/uuid"

// UUID generates random v4 identifiers for events and requests.
type UUID struct{}

func (UUID) NewID() string {
	return uuid.NewString()
}
