// Package id provides unique identifier generation for edit sessions.
package id

import "github.com/google/uuid"

// Generate creates a new unique session ID with the given prefix.
// Format: <prefix>-<uuid>
// Example: crop-0b6b7c4e-2f1d-4a8e-9d7e-3c1f2a9b8e10
func Generate(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
