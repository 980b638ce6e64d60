// Command cli runs the urlsentry pipeline: classification-backed URL
// scanning, multi-channel verdict aggregation, and a live console feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urlsentry/urlsentry/pkg/aggregator"
	"github.com/urlsentry/urlsentry/pkg/channels"
	"github.com/urlsentry/urlsentry/pkg/classify"
	"github.com/urlsentry/urlsentry/pkg/config"
	"github.com/urlsentry/urlsentry/pkg/coordinator"
	"github.com/urlsentry/urlsentry/pkg/duration"
	"github.com/urlsentry/urlsentry/pkg/hooks"
	"github.com/urlsentry/urlsentry/pkg/jsonutil"
	"github.com/urlsentry/urlsentry/pkg/settings"
	"github.com/urlsentry/urlsentry/pkg/ui"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseFlags()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	color := !cfg.NoColor && ui.ColorEnabled(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := settings.Open(cfg.SettingsPath, logger)

	dispatcher := hooks.NewDispatcher(logger)
	defer dispatcher.Close()

	dispatcher.Register(hooks.NewLoggerHook(logger))
	if cfg.MetricsAddr != "" {
		ph, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{Addr: cfg.MetricsAddr})
		if err != nil {
			return fmt.Errorf("starting metrics endpoint: %w", err)
		}
		dispatcher.Register(ph)
	}
	if cfg.OTelEndpoint != "" {
		oh, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint: cfg.OTelEndpoint,
			Insecure: cfg.OTelInsecure,
		})
		if err != nil {
			return fmt.Errorf("starting trace exporter: %w", err)
		}
		dispatcher.Register(oh)
	}

	// Surface policy-switch flips on the same event stream as verdicts.
	cancelSettings := store.Subscribe(func(ch settings.Change) {
		ev := hooks.SettingEvent{
			BaseEvent: hooks.Base(hooks.EventTypeSetting),
			Key:       string(ch.Key),
			Old:       ch.Old,
			New:       ch.New,
		}
		dispatcher.Dispatch(context.Background(), ev)
	})
	defer cancelSettings()

	classifier := classify.New(&classify.Config{
		Endpoint: cfg.ClassifyEndpoint,
		Timeout:  cfg.ScanTimeout,
	})

	coord := coordinator.New(store, classifier, &coordinator.Config{
		MaxConcurrent: cfg.Concurrency,
		RateLimit:     cfg.RateLimit,
		ScanTimeout:   cfg.ScanTimeout,
		Logger:        logger,
		Dispatcher:    dispatcher,
	})

	agg := aggregator.New(&aggregator.Config{
		FeedCapacity: cfg.FeedCapacity,
		Logger:       logger,
		Dispatcher:   dispatcher,
	})

	cancelFeed := agg.Subscribe(func(snap aggregator.Snapshot) {
		if len(snap.Feed) > 0 {
			fmt.Println(ui.FeedLine(snap.Feed[0], color))
		}
		fmt.Println(ui.StatsLine(snap.Stats, color))
	})
	defer cancelFeed()

	adapters := buildAdapters(cfg, agg, logger)
	if cfg.BridgeListen != "" {
		bridge := channels.NewBridge(agg, coord, channels.BridgeConfig{
			AllowedOrigin: cfg.BridgeOrigin,
			Logger:        logger,
		})
		adapters = append(adapters, bridge)
		go serveBridge(ctx, cfg.BridgeListen, bridge, logger)
	}
	group := channels.NewGroup(adapters...)
	go group.Run(ctx)
	if len(adapters) > 0 {
		go connectivityLoop(ctx, group, color)
	}

	logger.Info("urlsentry started",
		"classify", cfg.ClassifyEndpoint,
		"concurrency", cfg.Concurrency,
		"channels", len(adapters))

	// Scan URLs given on the command line, then stay up for channel traffic.
	for _, raw := range cfg.URLs() {
		td, err := coord.Scan(ctx, raw)
		if err != nil {
			logger.Warn("scan failed", "url", raw, "error", err)
			continue
		}
		ev, ok := threatToEvent(td)
		if !ok {
			// Scanning disabled, host denylisted, or the service call
			// failed: no verdict to show, the audit log has the detail.
			logger.Info("scan produced no verdict", "url", raw)
			continue
		}
		agg.Ingest(ev)
	}

	if len(adapters) == 0 {
		// One-shot mode: no transport will deliver further verdicts.
		return nil
	}

	<-ctx.Done()
	logger.Info("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), duration.DrainTimeout)
	defer cancel()
	coord.Drain(drainCtx)
	return nil
}

func buildAdapters(cfg *config.Config, agg *aggregator.Aggregator, logger *slog.Logger) []channels.Adapter {
	var adapters []channels.Adapter
	if cfg.PushURL != "" {
		adapters = append(adapters, channels.NewPush(agg, channels.PushConfig{
			URL:    cfg.PushURL,
			Logger: logger,
		}))
	}
	if cfg.PollURL != "" {
		adapters = append(adapters, channels.NewPoller(agg, channels.PollConfig{
			EventsURL: cfg.PollURL,
			StatsURL:  cfg.StatsURL,
			Interval:  cfg.PollInterval,
			Logger:    logger,
		}))
	}
	return adapters
}

// threatToEvent projects a completed scan into the feed's canonical shape.
// A nil result means the scan was skipped or the service was unavailable;
// there is nothing to feed, so ok is false.
func threatToEvent(td *verdict.ThreatData) (verdict.Event, bool) {
	if td == nil {
		return verdict.Event{}, false
	}
	cls, ok := verdict.ParseClassification(td.Type)
	if !ok {
		cls = verdict.Safe
	}
	return verdict.Event{
		URL:            td.URL,
		Classification: cls,
		RiskScore:      td.Severity * 10,
		Timestamp:      td.Timestamp,
		Channel:        "local",
	}, true
}

// bridgeHandler routes POST /bridge envelopes into the bridge adapter. The
// request's Origin header overrides the envelope's origin so callers cannot
// forge it.
func bridgeHandler(bridge *channels.Bridge) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var msg channels.BridgeMessage
		if err := jsonutil.UnmarshalRead(r.Body, &msg); err != nil {
			http.Error(w, "malformed bridge message", http.StatusBadRequest)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			msg.Origin = origin
		}
		switch err := bridge.Deliver(r.Context(), msg); {
		case err == nil:
			w.WriteHeader(http.StatusAccepted)
		case errors.Is(err, channels.ErrBadSource), errors.Is(err, channels.ErrBadOrigin):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
	return mux
}

// serveBridge exposes the extension bridge over a local HTTP intake.
func serveBridge(ctx context.Context, addr string, bridge *channels.Bridge, logger *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: bridgeHandler(bridge)}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), duration.HookShutdown)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("bridge intake listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("bridge intake failed", "error", err)
	}
}

func connectivityLoop(ctx context.Context, group *channels.Group, color bool) {
	ticker := time.NewTicker(duration.PollInterval)
	defer ticker.Stop()
	last := group.Connected()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := group.Connected()
			if now != last {
				fmt.Println(ui.ConnectivityLine(now, color))
				last = now
			}
		}
	}
}
