package util

import "github.com/google/uuid"

// NewID returns a random UUID, prefixed with "prefix_" when prefix is set.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
