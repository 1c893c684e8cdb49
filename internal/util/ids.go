package util

import "github.com/google/uuid"

// NewJobID returns a random id safe to embed in file names.
func NewJobID() string {
	return uuid.NewString()
}

// NewID prefixes a random id, e.g. "req_3f0c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
