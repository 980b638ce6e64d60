package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urlsentry/urlsentry/pkg/channels"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

func TestThreatToEvent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	td := &verdict.ThreatData{
		URL:       "https://bad.test/login",
		Type:      "MALICIOUS",
		Severity:  8,
		Timestamp: now,
	}

	ev, ok := threatToEvent(td)
	if !ok {
		t.Fatal("completed scan must produce a feed event")
	}
	if ev.Classification != verdict.Malicious {
		t.Errorf("classification = %v, want %v", ev.Classification, verdict.Malicious)
	}
	if ev.RiskScore != 80 {
		t.Errorf("risk score = %d, want 80", ev.RiskScore)
	}
	if ev.Channel != "local" {
		t.Errorf("channel = %q, want %q", ev.Channel, "local")
	}
	if !ev.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, now)
	}
}

func TestThreatToEventNilResult(t *testing.T) {
	t.Parallel()

	// Scan returns nil data without error when automatic scanning is off,
	// the host is denylisted, or the service call failed. The one-shot path
	// must skip ingestion instead of dereferencing the nil result.
	ev, ok := threatToEvent(nil)
	if ok {
		t.Fatalf("nil scan result must not produce a feed event, got %+v", ev)
	}
}

type captureSink struct {
	mu   sync.Mutex
	raws []verdict.RawEvent
}

func (s *captureSink) Ingest(verdict.Event) {}

func (s *captureSink) IngestRaw(raw verdict.RawEvent, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raws = append(s.raws, raw)
}

func (s *captureSink) ReconcileBaseline(verdict.Stats) {}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raws)
}

func TestBridgeHandler(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	bridge := channels.NewBridge(sink, nil, channels.BridgeConfig{
		AllowedOrigin: "https://app.test",
	})
	srv := httptest.NewServer(bridgeHandler(bridge))
	defer srv.Close()

	envelope := `{"source":"` + channels.SourceMarker + `","type":"` + channels.MsgScanResult + `","data":{"url":"https://x.test"}}`

	post := func(origin, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/bridge", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := post("https://app.test", envelope); resp.StatusCode != http.StatusAccepted {
		t.Errorf("valid envelope: status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if got := sink.count(); got != 1 {
		t.Errorf("ingested %d raw events, want 1", got)
	}

	if resp := post("https://evil.test", envelope); resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin: status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	if resp := post("https://app.test", "{not json"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	getResp, err := http.Get(srv.URL + "/bridge")
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want %d", getResp.StatusCode, http.StatusMethodNotAllowed)
	}

	if got := sink.count(); got != 1 {
		t.Errorf("rejected messages must not be ingested, sink has %d", got)
	}
}
