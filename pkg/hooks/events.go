// Package hooks provides the event routing layer for pipeline
// observability. The coordinator and the aggregator publish typed events;
// registered hooks (structured logging, Prometheus metrics, OpenTelemetry
// traces) consume them without the core packages knowing any backend.
package hooks

import (
	"time"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// EventType classifies a pipeline event.
type EventType string

const (
	// EventTypeScan is emitted once per completed or failed scan attempt.
	EventTypeScan EventType = "scan"
	// EventTypePolicy is emitted when a policy gate fires a side effect.
	EventTypePolicy EventType = "policy"
	// EventTypeVerdict is emitted for every verdict ingested into the feed.
	EventTypeVerdict EventType = "verdict"
	// EventTypeFeed is emitted after the feed or stats change.
	EventTypeFeed EventType = "feed"
	// EventTypeBaseline is emitted when backend totals replace local stats.
	EventTypeBaseline EventType = "baseline"
	// EventTypeSetting is emitted for every policy switch change.
	EventTypeSetting EventType = "setting"
)

// Event is the base interface for all pipeline events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// BaseEvent carries the fields common to every event. Embed it in concrete
// event types.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// Base stamps a BaseEvent of type t with the current time.
func Base(t EventType) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now()}
}

// ScanOutcome describes how a scan attempt ended.
type ScanOutcome string

const (
	// OutcomeCompleted indicates the classification call succeeded.
	OutcomeCompleted ScanOutcome = "completed"
	// OutcomeFailed indicates the classification call failed.
	OutcomeFailed ScanOutcome = "failed"
	// OutcomeSkipped indicates scanning was disabled or the host denylisted.
	OutcomeSkipped ScanOutcome = "skipped"
)

// ScanEvent reports one scan attempt.
type ScanEvent struct {
	BaseEvent
	ScanID   string        `json:"scan_id"`
	URL      string        `json:"url"`
	Outcome  ScanOutcome   `json:"outcome"`
	Severity int           `json:"severity,omitempty"`
	Threat   bool          `json:"is_threat,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// PolicyAction names a policy-gated side effect.
type PolicyAction string

const (
	// ActionBlock is the blocking side effect.
	ActionBlock PolicyAction = "block"
	// ActionAlert is the alerting side effect.
	ActionAlert PolicyAction = "alert"
	// ActionEscalate is the non-bypassable incident escalation.
	ActionEscalate PolicyAction = "escalate"
)

// PolicyEvent reports a fired policy side effect.
type PolicyEvent struct {
	BaseEvent
	ScanID   string       `json:"scan_id"`
	URL      string       `json:"url"`
	Action   PolicyAction `json:"action"`
	Severity int          `json:"severity"`
}

// VerdictEvent reports one ingested verdict.
type VerdictEvent struct {
	BaseEvent
	Verdict verdict.Event `json:"verdict"`
	// Superseded is true when the verdict replaced an earlier feed entry
	// for the same URL.
	Superseded bool `json:"superseded"`
}

// FeedEvent reports the feed state after an ingest.
type FeedEvent struct {
	BaseEvent
	Size  int           `json:"size"`
	Stats verdict.Stats `json:"stats"`
}

// BaselineEvent reports a wholesale stats reconciliation from the backend.
type BaselineEvent struct {
	BaseEvent
	Stats verdict.Stats `json:"stats"`
}

// SettingEvent reports a policy switch change.
type SettingEvent struct {
	BaseEvent
	Key string `json:"key"`
	Old bool   `json:"old"`
	New bool   `json:"new"`
}
