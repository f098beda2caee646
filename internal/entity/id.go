package entity

import "github.com/google/uuid"

// NewID returns a prefixed unique id, e.g. "br-6f0a...".
// Prefixes keep stored payloads greppable ("br", "proj", "inv", "wall", ...).
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
