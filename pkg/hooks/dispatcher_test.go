package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

type recordingHook struct {
	types  []EventType
	events []Event
	err    error
	panics bool
	closed bool
}

func (h *recordingHook) OnEvent(_ context.Context, e Event) error {
	if h.panics {
		panic("hook gone wrong")
	}
	h.events = append(h.events, e)
	return h.err
}

func (h *recordingHook) EventTypes() []EventType { return h.types }
func (h *recordingHook) Close() error            { h.closed = true; return nil }

func TestDispatch_AllHooksReceive(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	a := &recordingHook{}
	b := &recordingHook{}
	d.Register(a)
	d.Register(b)

	d.Dispatch(context.Background(), Base(EventTypeScan))
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestDispatch_TypeFilter(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	scanOnly := &recordingHook{types: []EventType{EventTypeScan}}
	all := &recordingHook{}
	d.Register(scanOnly)
	d.Register(all)

	d.Dispatch(context.Background(), Base(EventTypeScan))
	d.Dispatch(context.Background(), Base(EventTypeVerdict))

	if len(scanOnly.events) != 1 {
		t.Errorf("filtered hook saw %d events, want 1", len(scanOnly.events))
	}
	if len(all.events) != 2 {
		t.Errorf("unfiltered hook saw %d events, want 2", len(all.events))
	}
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	d.Register(&recordingHook{panics: true})
	d.Register(&recordingHook{err: errors.New("hook failed")})
	last := &recordingHook{}
	d.Register(last)

	d.Dispatch(context.Background(), Base(EventTypePolicy))
	if len(last.events) != 1 {
		t.Error("failing hooks starved delivery to the rest")
	}
}

func TestClose_ClosesResourceHooks(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	h := &recordingHook{}
	d.Register(h)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.closed {
		t.Error("Close should reach hooks implementing Closer")
	}
}

func TestLoggerHook_HandlesEveryEventType(t *testing.T) {
	t.Parallel()

	h := NewLoggerHook(nil)
	events := []Event{
		ScanEvent{BaseEvent: Base(EventTypeScan), ScanID: "s1", URL: "https://a.test", Outcome: OutcomeCompleted, Latency: time.Millisecond},
		ScanEvent{BaseEvent: Base(EventTypeScan), URL: "https://b.test", Outcome: OutcomeFailed},
		PolicyEvent{BaseEvent: Base(EventTypePolicy), Action: ActionEscalate, Severity: 9},
		VerdictEvent{BaseEvent: Base(EventTypeVerdict), Verdict: verdict.Event{URL: "https://a.test", Classification: verdict.Malicious}},
		FeedEvent{BaseEvent: Base(EventTypeFeed), Size: 3},
		BaselineEvent{BaseEvent: Base(EventTypeBaseline)},
		SettingEvent{BaseEvent: Base(EventTypeSetting), Key: "block_malicious"},
	}
	for _, e := range events {
		if err := h.OnEvent(context.Background(), e); err != nil {
			t.Errorf("OnEvent(%s): %v", e.EventType(), err)
		}
	}
}

func TestPrometheusHook_Counters(t *testing.T) {
	t.Parallel()

	h, err := NewPrometheusHook(PrometheusOptions{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	h.OnEvent(ctx, ScanEvent{BaseEvent: Base(EventTypeScan), Outcome: OutcomeCompleted, Latency: 20 * time.Millisecond})
	h.OnEvent(ctx, ScanEvent{BaseEvent: Base(EventTypeScan), Outcome: OutcomeFailed})
	h.OnEvent(ctx, VerdictEvent{BaseEvent: Base(EventTypeVerdict), Verdict: verdict.Event{Classification: verdict.Malicious, Channel: "push"}})
	h.OnEvent(ctx, PolicyEvent{BaseEvent: Base(EventTypePolicy), Action: ActionBlock})
	h.OnEvent(ctx, FeedEvent{BaseEvent: Base(EventTypeFeed), Size: 7, Stats: verdict.Stats{Safe: 4, Suspicious: 2, Malicious: 1}})

	if got := testutil.ToFloat64(h.scansTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed scans = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.scansTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed scans = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.verdictsTotal.WithLabelValues("MALICIOUS", "push")); got != 1 {
		t.Errorf("verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.policyTotal.WithLabelValues("block")); got != 1 {
		t.Errorf("policy actions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.feedSize); got != 7 {
		t.Errorf("feed size = %v, want 7", got)
	}
	if got := testutil.ToFloat64(h.statsTotals.WithLabelValues("safe")); got != 4 {
		t.Errorf("safe gauge = %v, want 4", got)
	}
}
