// Package aggregator owns the dashboard-side state: the bounded,
// newest-first feed of scan events and the running classification totals.
// Every transport adapter funnels through the single Ingest mutation point,
// so merge, dedup, and ordering stay channel-agnostic and reentrancy-safe.
package aggregator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/urlsentry/urlsentry/pkg/hooks"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// DefaultFeedCapacity bounds the visible feed.
const DefaultFeedCapacity = 100

// Config holds aggregator tuning. Zero values select defaults.
type Config struct {
	FeedCapacity int
	Logger       *slog.Logger
	Dispatcher   *hooks.Dispatcher // optional observability fan-out
}

// Snapshot is the read-only view handed to listeners.
type Snapshot struct {
	Feed  []verdict.Event
	Stats verdict.Stats
}

type feedEntry struct {
	key uint64
	ev  verdict.Event
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Aggregator merges verdicts from all channels into one consistent feed.
// Safe for concurrent use from any number of adapters.
type Aggregator struct {
	mu        sync.Mutex
	feed      []feedEntry // newest first
	stats     verdict.Stats
	listeners []listener
	nextID    int

	capacity   int
	logger     *slog.Logger
	dispatcher *hooks.Dispatcher
}

// New creates an Aggregator. cfg may be nil for defaults.
func New(cfg *Config) *Aggregator {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.FeedCapacity <= 0 {
		c.FeedCapacity = DefaultFeedCapacity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Aggregator{
		feed:       make([]feedEntry, 0, c.FeedCapacity),
		capacity:   c.FeedCapacity,
		logger:     c.Logger,
		dispatcher: c.Dispatcher,
	}
}

// Ingest merges one canonical event into the feed:
// the event's score is clamped and an empty classification degrades to SAFE
// with a warning; any existing entry for the same URL is removed (supersede
// dedup) with its stats contribution reversed; the event is inserted at the
// head; the feed is trimmed from the tail to capacity; stats are updated
// incrementally; listeners are notified with a fresh snapshot.
func (a *Aggregator) Ingest(ev verdict.Event) {
	ev.RiskScore = verdict.ClampScore(ev.RiskScore)
	if ev.Classification == "" {
		a.logger.Warn("event missing classification, defaulting to SAFE",
			"url", ev.URL, "channel", ev.Channel)
		ev.Classification = verdict.Safe
	}

	key := verdict.Key(ev.URL)

	a.mu.Lock()

	superseded := false
	for i, e := range a.feed {
		if e.key == key {
			a.decrement(e.ev.Classification)
			a.feed = append(a.feed[:i], a.feed[i+1:]...)
			superseded = true
			break
		}
	}

	a.feed = append([]feedEntry{{key: key, ev: ev}}, a.feed...)

	// Trim from the tail; trimmed entries leave the visible feed but their
	// counts remain: stats are cumulative, not a projection of the feed.
	if len(a.feed) > a.capacity {
		a.feed = a.feed[:a.capacity]
	}

	a.increment(ev.Classification)
	a.stats.Recompute()

	snap := a.snapshotLocked()
	ls := make([]listener, len(a.listeners))
	copy(ls, a.listeners)
	a.mu.Unlock()

	a.dispatch(hooks.VerdictEvent{
		BaseEvent:  hooks.Base(hooks.EventTypeVerdict),
		Verdict:    ev,
		Superseded: superseded,
	})
	a.dispatch(hooks.FeedEvent{
		BaseEvent: hooks.Base(hooks.EventTypeFeed),
		Size:      len(snap.Feed),
		Stats:     snap.Stats,
	})

	a.notify(ls, snap)
}

// IngestRaw normalizes a raw channel payload and ingests it.
func (a *Aggregator) IngestRaw(raw verdict.RawEvent, channel string) {
	a.Ingest(raw.Normalize(channel, a.logger))
}

// ReconcileBaseline replaces the aggregate totals wholesale with the
// backend's cumulative counts, establishing the backend as the source of
// truth for stats while every channel keeps contributing to the live feed.
func (a *Aggregator) ReconcileBaseline(stats verdict.Stats) {
	stats.Recompute()

	a.mu.Lock()
	a.stats = stats
	snap := a.snapshotLocked()
	ls := make([]listener, len(a.listeners))
	copy(ls, a.listeners)
	a.mu.Unlock()

	a.dispatch(hooks.BaselineEvent{
		BaseEvent: hooks.Base(hooks.EventTypeBaseline),
		Stats:     stats,
	})
	a.notify(ls, snap)
}

// Subscribe registers fn for every feed/stats change and returns a disposer.
func (a *Aggregator) Subscribe(fn func(Snapshot)) (cancel func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners = append(a.listeners, listener{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
					break
				}
			}
			a.mu.Unlock()
		})
	}
}

// Feed returns the current feed, newest first.
func (a *Aggregator) Feed() []verdict.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.feedLocked()
}

// Stats returns the current aggregate totals.
func (a *Aggregator) Stats() verdict.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Snapshot returns feed and stats in one consistent read.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{Feed: a.feedLocked(), Stats: a.stats}
}

func (a *Aggregator) feedLocked() []verdict.Event {
	out := make([]verdict.Event, len(a.feed))
	for i, e := range a.feed {
		out[i] = e.ev
	}
	return out
}

func (a *Aggregator) increment(c verdict.Classification) {
	a.stats.Total++
	switch c {
	case verdict.Suspicious:
		a.stats.Suspicious++
	case verdict.Malicious:
		a.stats.Malicious++
	default:
		a.stats.Safe++
	}
}

// decrement reverses the stats contribution of a superseded entry,
// preserving safe+suspicious+malicious == total.
func (a *Aggregator) decrement(c verdict.Classification) {
	a.stats.Total--
	switch c {
	case verdict.Suspicious:
		a.stats.Suspicious--
	case verdict.Malicious:
		a.stats.Malicious--
	default:
		a.stats.Safe--
	}
}

func (a *Aggregator) notify(ls []listener, snap Snapshot) {
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("feed listener panicked", "panic", r)
				}
			}()
			l.fn(snap)
		}()
	}
}

func (a *Aggregator) dispatch(e hooks.Event) {
	if a.dispatcher != nil {
		a.dispatcher.Dispatch(context.Background(), e)
	}
}
