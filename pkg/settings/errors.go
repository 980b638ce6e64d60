package settings

import "errors"

// Sentinel errors for settings failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrUnknownKey indicates a key outside the fixed switch set.
	ErrUnknownKey = errors.New("settings: unknown key")
)
