package verdict

import (
	"bytes"
	"log/slog"
	"testing"
	"time"
)

func TestParseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Classification
		wantOK bool
	}{
		{"SAFE", Safe, true},
		{"safe", Safe, true},
		{"  Benign ", Safe, true},
		{"CLEAN", Safe, true},
		{"SUSPICIOUS", Suspicious, true},
		{"warning", Suspicious, true},
		{"MALICIOUS", Malicious, true},
		{"Dangerous", Malicious, true},
		{"PHISHING", Malicious, true},
		{"", Safe, false},
		{"bogus", Safe, false},
		{"MODERATE", Safe, false},
	}
	for _, tt := range tests {
		got, ok := ParseClassification(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseClassification(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClampScore(t *testing.T) {
	t.Parallel()

	if got := ClampScore(-5); got != 0 {
		t.Errorf("ClampScore(-5) = %d, want 0", got)
	}
	if got := ClampScore(150); got != 100 {
		t.Errorf("ClampScore(150) = %d, want 100", got)
	}
	if got := ClampScore(42); got != 42 {
		t.Errorf("ClampScore(42) = %d, want 42", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/path", "https://example.com/path"},
		{"http://example.com:80/a", "http://example.com/a"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"https://example.com:8443/a", "https://example.com:8443/a"},
		{"https://example.com/page#frag", "https://example.com/page"},
		{"  https://example.com  ", "https://example.com"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey_EquivalentURLsCollide(t *testing.T) {
	t.Parallel()

	a := Key("HTTPS://Example.com/login#top")
	b := Key("https://example.com:443/login")
	if a != b {
		t.Errorf("equivalent URLs hashed differently: %d vs %d", a, b)
	}
	if Key("https://example.com/login") == Key("https://example.com/logout") {
		t.Error("distinct URLs produced the same key")
	}
}

func TestStatsRecompute(t *testing.T) {
	t.Parallel()

	s := Stats{Total: 4, Safe: 2, Suspicious: 1, Malicious: 1}
	s.Recompute()
	if s.SafePct != 50 || s.SuspiciousPct != 25 || s.MaliciousPct != 25 {
		t.Errorf("unexpected percentages: %+v", s)
	}

	empty := Stats{}
	empty.Recompute()
	if empty.SafePct != 0 || empty.SuspiciousPct != 0 || empty.MaliciousPct != 0 {
		t.Errorf("empty stats should have zero percentages: %+v", empty)
	}
}

func TestRawEventNormalize_AliasResolution(t *testing.T) {
	t.Parallel()

	score := 73.6
	raw := RawEvent{
		URL:         "https://example.com",
		ThreatLevel: "dangerous",
		RiskScore:   &score,
		TimestampMS: 1700000000000,
	}
	ev := raw.Normalize("push", discard())

	if ev.Classification != Malicious {
		t.Errorf("classification = %v, want %v", ev.Classification, Malicious)
	}
	if ev.RiskScore != 74 {
		t.Errorf("score = %d, want 74 (rounded)", ev.RiskScore)
	}
	if !ev.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp = %v, want epoch-ms conversion", ev.Timestamp)
	}
	if ev.Channel != "push" {
		t.Errorf("channel = %q, want push", ev.Channel)
	}
}

func TestRawEventNormalize_VerdictPrecedence(t *testing.T) {
	t.Parallel()

	raw := RawEvent{URL: "https://a.test", Risk: "safe", ClassificationS: "malicious"}
	if ev := raw.Normalize("poll", discard()); ev.Classification != Safe {
		t.Errorf("risk alias should win, got %v", ev.Classification)
	}
}

func TestRawEventNormalize_UnknownVerdictDefaultsSafe(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	raw := RawEvent{URL: "https://a.test", Risk: "MODERATE"}
	ev := raw.Normalize("bus", logger)
	if ev.Classification != Safe {
		t.Errorf("unknown verdict should default to Safe, got %v", ev.Classification)
	}
	if !bytes.Contains(buf.Bytes(), []byte("unrecognized verdict")) {
		t.Error("expected a warning for the unrecognized verdict")
	}
}

func TestRawEventNormalize_ScoreClampAndStamp(t *testing.T) {
	t.Parallel()

	big := 425.0
	raw := RawEvent{URL: "https://a.test", Risk: "safe", Score: &big}
	ev := raw.Normalize("push", discard())
	if ev.RiskScore != 100 {
		t.Errorf("score = %d, want clamped 100", ev.RiskScore)
	}
	if time.Since(ev.Timestamp) > time.Minute {
		t.Error("missing timestamp should be stamped with the current time")
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
