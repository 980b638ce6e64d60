package channels

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/urlsentry/urlsentry/pkg/duration"
	"github.com/urlsentry/urlsentry/pkg/jsonutil"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// PollConfig configures the REST polling adapter.
type PollConfig struct {
	// EventsURL is the recent-scans endpoint. A `since` query parameter
	// with the last seen epoch-millisecond timestamp is appended.
	EventsURL string

	// StatsURL is the cumulative-totals endpoint used to reconcile the
	// stats baseline on every (re)connect.
	StatsURL string

	// Interval between polls (default duration.PollInterval).
	Interval time.Duration

	// Client optionally overrides the HTTP client.
	Client *http.Client

	Logger *slog.Logger
}

// Poller periodically fetches verdicts over REST. The backend behind
// StatsURL is the source of truth for aggregate counts: after any gap in
// connectivity the next successful poll reconciles the baseline before new
// events are ingested.
type Poller struct {
	cfg    PollConfig
	sink   Sink
	client *http.Client
	logger *slog.Logger

	alive atomic.Bool
	since int64
}

// NewPoller creates the polling adapter.
func NewPoller(sink Sink, cfg PollConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = duration.PollInterval
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: duration.PollRequest}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{cfg: cfg, sink: sink, client: client, logger: logger}
}

// Name implements Adapter.
func (p *Poller) Name() string { return NamePoll }

// Alive implements Adapter.
func (p *Poller) Alive() bool { return p.alive.Load() }

// Run implements Adapter: poll immediately, then on every tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.alive.Store(false)
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	events, err := p.fetchEvents(ctx)
	if err != nil {
		if p.alive.Swap(false) {
			p.logger.Warn("poll channel down", "err", err)
		}
		return
	}

	// First success after a gap: the backend's cumulative totals replace
	// local stats before the new events land.
	if !p.alive.Swap(true) {
		p.reconcile(ctx)
	}

	for _, raw := range events {
		if raw.TimestampMS > p.since {
			p.since = raw.TimestampMS
		}
		p.sink.IngestRaw(raw, NamePoll)
	}
}

func (p *Poller) fetchEvents(ctx context.Context) ([]verdict.RawEvent, error) {
	url := p.cfg.EventsURL
	if p.since > 0 {
		url = fmt.Sprintf("%s?since=%d", url, p.since)
	}

	var events []verdict.RawEvent
	if err := p.get(ctx, url, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (p *Poller) reconcile(ctx context.Context) {
	if p.cfg.StatsURL == "" {
		return
	}
	var stats verdict.Stats
	if err := p.get(ctx, p.cfg.StatsURL, &stats); err != nil {
		// Baseline reconciliation is retried on the next reconnect; event
		// ingestion continues meanwhile.
		p.logger.Warn("stats baseline fetch failed", "err", err)
		return
	}
	p.sink.ReconcileBaseline(stats)
}

func (p *Poller) get(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("poll: building request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll: unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := jsonutil.UnmarshalRead(resp.Body, v); err != nil {
		return fmt.Errorf("poll: decoding response: %w", err)
	}
	return nil
}
