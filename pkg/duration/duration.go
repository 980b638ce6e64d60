// Package duration provides canonical time constants for the entire codebase.
// Every timeout, interval, and backoff bound used by the pipeline lives here
// so a single edit retunes the whole binary.
//
// Do not hardcode time.Duration values at call sites; reference the
// appropriate constant from this package instead.
package duration

import "time"

// Classification service timeouts.
const (
	// Classify bounds a single outbound classification call (15s).
	Classify = 15 * time.Second

	// ClassifyConnect is the dial/TLS budget inside a classification call (5s).
	ClassifyConnect = 5 * time.Second
)

// Transport channel timing.
const (
	// PushHandshake bounds the WebSocket dial and upgrade (10s).
	PushHandshake = 10 * time.Second

	// PushReadIdle is how long the push channel may stay silent before the
	// connection is considered dead and redialed (90s).
	PushReadIdle = 90 * time.Second

	// PollInterval is the default REST polling cadence (10s).
	PollInterval = 10 * time.Second

	// PollRequest bounds a single polling round trip (8s).
	PollRequest = 8 * time.Second

	// ReconnectInitial is the first redial delay after a channel drop (1s).
	ReconnectInitial = 1 * time.Second

	// ReconnectMax caps redial backoff growth (30s).
	ReconnectMax = 30 * time.Second
)

// Hook and shutdown timing.
const (
	// HookTimeout bounds a single observability hook delivery (10s).
	HookTimeout = 10 * time.Second

	// HookShutdown bounds graceful teardown of hook backends such as the
	// metrics server or the OTLP exporter (5s).
	HookShutdown = 5 * time.Second

	// DrainTimeout is the overall budget for process shutdown (10s).
	DrainTimeout = 10 * time.Second

	// DrainTick is how often shutdown re-checks for outstanding scans (50ms).
	DrainTick = 50 * time.Millisecond
)

// Miscellaneous.
const (
	// HostErrorExpiry is how long a host stays on the failure denylist
	// before scans are attempted again (5min).
	HostErrorExpiry = 5 * time.Minute
)
