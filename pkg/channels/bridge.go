package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// SourceMarker is the source tag every legitimate bridge message carries.
const SourceMarker = "urlsentry-extension"

// Bridge message types.
const (
	// MsgURLVisited asks the pipeline to scan a freshly visited URL.
	MsgURLVisited = "URL_VISITED"
	// MsgScanResult delivers a verdict computed on the extension side.
	MsgScanResult = "NEW_SCAN_RESULT"
)

// Sentinel errors for rejected bridge messages.
var (
	// ErrBadSource indicates a message without the expected source marker.
	ErrBadSource = errors.New("bridge: unexpected source")
	// ErrBadOrigin indicates a message from a foreign origin.
	ErrBadOrigin = errors.New("bridge: origin not allowed")
	// ErrUnknownType indicates an unrecognized message type.
	ErrUnknownType = errors.New("bridge: unknown message type")
)

// BridgeMessage is the in-page bridge envelope.
type BridgeMessage struct {
	Source string           `json:"source"`
	Origin string           `json:"origin"`
	Type   string           `json:"type"`
	Data   verdict.RawEvent `json:"data"`
}

// Scanner is the outbound request surface the bridge triggers for visited
// URLs. *coordinator.Coordinator satisfies it.
type Scanner interface {
	Scan(ctx context.Context, rawURL string) (*verdict.ThreatData, error)
}

// BridgeConfig configures the bridge adapter.
type BridgeConfig struct {
	// AllowedOrigin is the page origin messages must come from.
	AllowedOrigin string
	Logger        *slog.Logger
}

// Bridge validates and routes extension messages. Unlike the network
// adapters it has no transport of its own: the embedding surface calls
// Deliver for every message it receives.
type Bridge struct {
	cfg      BridgeConfig
	sink     Sink
	scanner  Scanner
	logger   *slog.Logger
	rejected atomic.Int64
}

// NewBridge creates the bridge adapter. scanner may be nil if visited-URL
// scan requests should be ignored.
func NewBridge(sink Sink, scanner Scanner, cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, sink: sink, scanner: scanner, logger: logger}
}

// Name implements Adapter.
func (b *Bridge) Name() string { return NameBridge }

// Run implements Adapter. The bridge is passive; Run just waits for ctx.
func (b *Bridge) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Alive implements Adapter. The in-process bridge is always reachable.
func (b *Bridge) Alive() bool { return true }

// Deliver validates msg and routes it. Messages without the source marker
// or from a foreign origin are rejected; rejection is counted and logged at
// debug, never ingested.
func (b *Bridge) Deliver(ctx context.Context, msg BridgeMessage) error {
	if msg.Source != SourceMarker {
		b.reject("source", msg)
		return fmt.Errorf("%w: %q", ErrBadSource, msg.Source)
	}
	if b.cfg.AllowedOrigin != "" && msg.Origin != b.cfg.AllowedOrigin {
		b.reject("origin", msg)
		return fmt.Errorf("%w: %q", ErrBadOrigin, msg.Origin)
	}

	switch msg.Type {
	case MsgScanResult:
		b.sink.IngestRaw(msg.Data, NameBridge)
		return nil
	case MsgURLVisited:
		if b.scanner == nil {
			return nil
		}
		// The scan result flows back through the coordinator's own
		// channels; the bridge only requests it.
		_, err := b.scanner.Scan(ctx, msg.Data.URL)
		return err
	default:
		b.reject("type", msg)
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// Rejected returns how many messages failed validation since startup.
func (b *Bridge) Rejected() int64 { return b.rejected.Load() }

func (b *Bridge) reject(reason string, msg BridgeMessage) {
	b.rejected.Add(1)
	b.logger.Debug("bridge message rejected",
		"reason", reason, "source", msg.Source, "origin", msg.Origin, "type", msg.Type)
}
