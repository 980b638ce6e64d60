// Package coordinator owns the outbound half of the scan pipeline. It
// collapses concurrent requests for the same URL into one classification
// call, bounds global concurrency with a queue of waiters, rate-limits the
// outbound service, and applies the policy gates to each result using the
// switch values current at result time, not request time.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/urlsentry/urlsentry/pkg/classify"
	"github.com/urlsentry/urlsentry/pkg/duration"
	"github.com/urlsentry/urlsentry/pkg/hooks"
	"github.com/urlsentry/urlsentry/pkg/settings"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Defaults and policy thresholds.
const (
	// DefaultMaxConcurrent is the global ceiling on simultaneous
	// classification calls.
	DefaultMaxConcurrent = 5

	// DefaultLogCapacity bounds the scan audit ring.
	DefaultLogCapacity = 1000

	// BlockSeverity is the minimum severity for the blocking gate.
	BlockSeverity = 7

	// EscalateSeverity is the safety floor: at or above it, incident
	// escalation fires regardless of any switch.
	EscalateSeverity = 9

	// DefaultHostErrorLimit is how many consecutive classification failures
	// put a host on the temporary denylist.
	DefaultHostErrorLimit = 5
)

// Classifier abstracts the external classification service.
type Classifier interface {
	Classify(ctx context.Context, rawURL, scanID string) (*classify.Response, error)
}

// Config holds coordinator tuning. Zero values select the defaults above.
type Config struct {
	MaxConcurrent  int
	RateLimit      float64 // outbound calls per second, 0 = unlimited
	ScanTimeout    time.Duration
	LogCapacity    int
	HostErrorLimit int

	Logger     *slog.Logger
	Dispatcher *hooks.Dispatcher // optional observability fan-out
}

// Coordinator deduplicates, rate-limits, and audits scan requests.
// Safe for concurrent use.
type Coordinator struct {
	cfg        Config
	settings   *settings.Store
	classifier Classifier
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight

	sem     chan struct{}
	limiter *rate.Limiter
	active  atomic.Int32

	logs     *scanLog
	hostErrs *hostErrorCache

	threatCbs   registry[*verdict.ThreatData]
	blockCbs    registry[*verdict.ThreatData]
	escalateCbs registry[*verdict.ThreatData]
}

// flight is one outstanding classification call, shared by every caller
// that requested the same URL while it was in progress.
type flight struct {
	done chan struct{}
	data *verdict.ThreatData
}

// New creates a Coordinator reading policy from store and classifying
// through classifier. cfg may be nil for defaults.
func New(store *settings.Store, classifier Classifier, cfg *Config) *Coordinator {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = duration.Classify
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = DefaultLogCapacity
	}
	if c.HostErrorLimit <= 0 {
		c.HostErrorLimit = DefaultHostErrorLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if c.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RateLimit), max(1, int(c.RateLimit)))
	}

	return &Coordinator{
		cfg:        c,
		settings:   store,
		classifier: classifier,
		logger:     c.Logger,
		inflight:   make(map[string]*flight),
		sem:        make(chan struct{}, c.MaxConcurrent),
		limiter:    limiter,
		logs:       newScanLog(c.LogCapacity),
		hostErrs:   newHostErrorCache(c.HostErrorLimit, duration.HostErrorExpiry),
	}
}

// Scan classifies rawURL and applies result-time policy. It returns nil data
// without error when automatic scanning is disabled or the service call
// fails; service faults never surface to the caller as errors. Concurrent
// calls for the same URL share one classification call and observe the
// identical result. The only error Scan returns is the caller's own context
// error while waiting.
func (c *Coordinator) Scan(ctx context.Context, rawURL string) (*verdict.ThreatData, error) {
	enabled, err := c.settings.Get(settings.AutomaticScanning)
	if err != nil || !enabled {
		c.logger.Debug("scan skipped, automatic scanning disabled", "url", rawURL)
		return nil, nil
	}

	key := verdict.NormalizeURL(rawURL)

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, f)
	}
	f := &flight{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	// The scan itself runs detached from the first caller's context: a
	// caller that abandons interest must not cancel the shared call, and
	// the audit log records the eventual result either way.
	go c.run(f, key, rawURL)

	return c.await(ctx, f)
}

func (c *Coordinator) await(ctx context.Context, f *flight) (*verdict.ThreatData, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.data, nil
	}
}

func (c *Coordinator) run(f *flight, key, rawURL string) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		close(f.done)
	}()

	host := registrableHost(rawURL)
	if c.hostErrs.denied(host) {
		c.logger.Debug("scan skipped, host denylisted", "url", rawURL, "host", host)
		c.logs.append(LogEntry{
			URL:   rawURL,
			Time:  time.Now(),
			Error: "host denylisted",
		})
		c.dispatch(hooks.ScanEvent{
			BaseEvent: hooks.Base(hooks.EventTypeScan),
			URL:       rawURL,
			Outcome:   hooks.OutcomeSkipped,
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ScanTimeout)
	defer cancel()

	// Admission: queue on the semaphore until a slot frees, then respect
	// the outbound rate limit.
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		c.recordFailure(rawURL, "", 0, ctx.Err())
		return
	}
	defer func() { <-c.sem }()

	if err := c.limiter.Wait(ctx); err != nil {
		c.recordFailure(rawURL, "", 0, err)
		return
	}

	c.active.Add(1)
	defer c.active.Add(-1)

	scanID := uuid.NewString()
	start := time.Now()
	resp, err := c.classifier.Classify(ctx, rawURL, scanID)
	elapsed := time.Since(start)

	if err != nil {
		if c.hostErrs.mark(host) {
			c.logger.Warn("host denylisted after repeated failures", "host", host)
		}
		c.recordFailure(rawURL, scanID, elapsed, err)
		return
	}
	c.hostErrs.clear(host)

	td := &verdict.ThreatData{
		URL:       rawURL,
		Type:      resp.Classification,
		Severity:  severityFromScore(resp.ThreatScore),
		Timestamp: time.Now(),
		ScanID:    scanID,
		Threat:    !resp.Benign(),
	}
	f.data = td

	c.logs.append(LogEntry{
		ScanID:   scanID,
		URL:      rawURL,
		Threat:   td,
		Duration: elapsed,
		Time:     td.Timestamp,
	})
	c.dispatch(hooks.ScanEvent{
		BaseEvent: hooks.Base(hooks.EventTypeScan),
		ScanID:    scanID,
		URL:       rawURL,
		Outcome:   hooks.OutcomeCompleted,
		Severity:  td.Severity,
		Threat:    td.Threat,
		Latency:   elapsed,
	})

	if td.Threat {
		c.applyPolicy(td)
	}
}

// applyPolicy evaluates the gates with the switch values current right now.
// Order matters: blocking, then alerting, then escalation. Escalation is the
// safety floor and ignores every switch.
func (c *Coordinator) applyPolicy(td *verdict.ThreatData) {
	if block, err := c.settings.Get(settings.BlockMalicious); err == nil && block && td.Severity >= BlockSeverity {
		c.blockCbs.invoke(c.logger, "block", td)
		c.dispatchPolicy(hooks.ActionBlock, td)
	}
	if alert, err := c.settings.Get(settings.ThreatAlerts); err == nil && alert {
		c.threatCbs.invoke(c.logger, "threat", td)
		c.dispatchPolicy(hooks.ActionAlert, td)
	}
	if td.Severity >= EscalateSeverity {
		c.escalateCbs.invoke(c.logger, "escalate", td)
		c.dispatchPolicy(hooks.ActionEscalate, td)
	}
}

func (c *Coordinator) recordFailure(rawURL, scanID string, elapsed time.Duration, err error) {
	c.logger.Warn("scan failed", "url", rawURL, "err", err)
	c.logs.append(LogEntry{
		ScanID:   scanID,
		URL:      rawURL,
		Duration: elapsed,
		Time:     time.Now(),
		Error:    err.Error(),
	})
	c.dispatch(hooks.ScanEvent{
		BaseEvent: hooks.Base(hooks.EventTypeScan),
		ScanID:    scanID,
		URL:       rawURL,
		Outcome:   hooks.OutcomeFailed,
		Latency:   elapsed,
	})
}

func (c *Coordinator) dispatch(e hooks.Event) {
	if c.cfg.Dispatcher != nil {
		c.cfg.Dispatcher.Dispatch(context.Background(), e)
	}
}

func (c *Coordinator) dispatchPolicy(action hooks.PolicyAction, td *verdict.ThreatData) {
	c.dispatch(hooks.PolicyEvent{
		BaseEvent: hooks.Base(hooks.EventTypePolicy),
		ScanID:    td.ScanID,
		URL:       td.URL,
		Action:    action,
		Severity:  td.Severity,
	})
}

// OnThreat registers fn for every threat result passing the alert gate.
func (c *Coordinator) OnThreat(fn func(*verdict.ThreatData)) (cancel func()) {
	return c.threatCbs.add(fn)
}

// OnBlock registers fn for every result passing the blocking gate.
func (c *Coordinator) OnBlock(fn func(*verdict.ThreatData)) (cancel func()) {
	return c.blockCbs.add(fn)
}

// OnEscalate registers fn for every result at or above the safety floor.
func (c *Coordinator) OnEscalate(fn func(*verdict.ThreatData)) (cancel func()) {
	return c.escalateCbs.add(fn)
}

// Logs returns the retained audit entries in chronological order.
func (c *Coordinator) Logs() []LogEntry { return c.logs.snapshot() }

// ClearLogs discards the audit ring.
func (c *Coordinator) ClearLogs() { c.logs.clear() }

// ActiveScans returns the number of classification calls in progress.
func (c *Coordinator) ActiveScans() int { return int(c.active.Load()) }

// Drain waits for outstanding scans to finish or ctx to expire. Scans run
// detached from their callers, so shutdown gives them a bounded grace
// period instead of cutting them off mid-call.
func (c *Coordinator) Drain(ctx context.Context) {
	ticker := time.NewTicker(duration.DrainTick)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		pending := len(c.inflight)
		c.mu.Unlock()
		if pending == 0 && c.active.Load() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// severityFromScore maps the service's 0-100 score onto the 0-10 severity
// scale used by the policy gates.
func severityFromScore(score int) int {
	score = verdict.ClampScore(score)
	return score / 10
}
