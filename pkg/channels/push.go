package channels

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/urlsentry/urlsentry/pkg/duration"
	"github.com/urlsentry/urlsentry/pkg/jsonutil"
	"github.com/urlsentry/urlsentry/pkg/retry"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Push message names.
const (
	// PushNewScan carries a terminal verdict and is ingested.
	PushNewScan = "new_scan"
	// PushScanStarted and PushScanUpdate are progress markers. They never
	// reach the feed.
	PushScanStarted = "scan_started"
	PushScanUpdate  = "scan_update"
)

// pushEnvelope is the push socket's message frame.
type pushEnvelope struct {
	Event string           `json:"event"`
	Data  verdict.RawEvent `json:"data"`
}

// PushConfig configures the WebSocket push adapter.
type PushConfig struct {
	// URL is the ws:// or wss:// push endpoint.
	URL string

	// IdleTimeout is how long the socket may stay silent before the
	// connection is redialed (default duration.PushReadIdle).
	IdleTimeout time.Duration

	// Backoff controls redial delays (default reconnect tuning).
	Backoff retry.Config

	Logger *slog.Logger
}

// Push consumes the backend's WebSocket verdict stream. Disconnects degrade
// liveness and trigger exponential-backoff redials; they never crash the
// pipeline.
type Push struct {
	cfg    PushConfig
	sink   Sink
	logger *slog.Logger
	alive  atomic.Bool
}

// NewPush creates the push adapter.
func NewPush(sink Sink, cfg PushConfig) *Push {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = duration.PushReadIdle
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = retry.Config{
			MaxAttempts: 1 << 30, // redial forever; ctx bounds the loop
			InitDelay:   duration.ReconnectInitial,
			MaxDelay:    duration.ReconnectMax,
			Strategy:    retry.Exponential,
			Jitter:      true,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Push{cfg: cfg, sink: sink, logger: logger}
}

// Name implements Adapter.
func (p *Push) Name() string { return NamePush }

// Alive implements Adapter.
func (p *Push) Alive() bool { return p.alive.Load() }

// Run implements Adapter: dial, consume, redial with backoff, until ctx is
// done.
func (p *Push) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.session(ctx, &attempt)
		p.alive.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("push channel disconnected", "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.Delay(p.cfg.Backoff, attempt)):
			attempt++
		}
	}
}

// session runs one connection until it fails. attempt is reset once the
// socket proves healthy by delivering a message.
func (p *Push) session(ctx context.Context, attempt *int) error {
	dialCtx, cancel := context.WithTimeout(ctx, duration.PushHandshake)
	conn, _, _, err := ws.Dial(dialCtx, p.cfg.URL)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	p.alive.Store(true)
	p.logger.Info("push channel connected", "url", p.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(p.cfg.IdleTimeout)); err != nil {
			return err
		}
		data, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			return err
		}
		if op != ws.OpText {
			continue
		}
		*attempt = 0
		p.handle(data)
	}
}

func (p *Push) handle(data []byte) {
	var env pushEnvelope
	if err := jsonutil.Unmarshal(data, &env); err != nil {
		p.logger.Warn("push message undecodable", "err", err)
		return
	}

	switch env.Event {
	case PushNewScan:
		p.sink.IngestRaw(env.Data, NamePush)
	case PushScanStarted, PushScanUpdate:
		p.logger.Debug("push progress marker", "event", env.Event, "url", env.Data.URL)
	default:
		p.logger.Debug("push message ignored", "event", env.Event)
	}
}
