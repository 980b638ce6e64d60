package classify

import "errors"

// Sentinel errors for classification failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrRejected indicates the service refused the request (4xx).
	// Not retried.
	ErrRejected = errors.New("classify: request rejected")

	// ErrUnavailable indicates a transient service failure (5xx).
	ErrUnavailable = errors.New("classify: service unavailable")
)
