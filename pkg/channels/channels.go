// Package channels provides one adapter per inbound verdict transport: the
// backend push socket, REST polling, the cross-context broadcast bus, and
// the extension in-page bridge. An adapter's only job is translating its
// channel's payload shape into a canonical event and handing it to the Sink;
// all merge, dedup, and ordering logic lives behind that single entry point.
package channels

import (
	"context"
	"sync"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Channel names stamped onto canonical events.
const (
	NamePush   = "push"
	NamePoll   = "poll"
	NameBus    = "bus"
	NameBridge = "bridge"
)

// Sink is the single ingestion surface the adapters feed.
// *aggregator.Aggregator satisfies it.
type Sink interface {
	Ingest(verdict.Event)
	IngestRaw(raw verdict.RawEvent, channel string)
	ReconcileBaseline(stats verdict.Stats)
}

// Adapter is a running transport channel.
type Adapter interface {
	// Name identifies the channel.
	Name() string

	// Run consumes the transport until ctx is done. Transport failures are
	// handled internally (reconnects, degraded liveness); Run only returns
	// ctx's error.
	Run(ctx context.Context) error

	// Alive reports current transport liveness.
	Alive() bool
}

// Group runs a set of adapters and answers the dashboard's connectivity
// indicator: the feed counts as live while at least one channel is.
type Group struct {
	adapters []Adapter
	wg       sync.WaitGroup
}

// NewGroup creates a Group over adapters.
func NewGroup(adapters ...Adapter) *Group {
	return &Group{adapters: adapters}
}

// Run starts every adapter and blocks until ctx is done and all have
// returned.
func (g *Group) Run(ctx context.Context) {
	for _, a := range g.adapters {
		g.wg.Add(1)
		go func(a Adapter) {
			defer g.wg.Done()
			_ = a.Run(ctx)
		}(a)
	}
	g.wg.Wait()
}

// Connected reports whether at least one channel is alive.
func (g *Group) Connected() bool {
	for _, a := range g.adapters {
		if a.Alive() {
			return true
		}
	}
	return false
}
