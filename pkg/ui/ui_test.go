package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

func TestFeedLine_Plain(t *testing.T) {
	t.Parallel()

	line := FeedLine(verdict.Event{
		URL:            "https://a.test",
		Classification: verdict.Malicious,
		RiskScore:      92,
		Channel:        "push",
	}, false)

	for _, want := range []string{"MALICIOUS", "92", "https://a.test", "(push)"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestStatsLine_Plain(t *testing.T) {
	t.Parallel()

	s := verdict.Stats{Total: 4, Safe: 2, Suspicious: 1, Malicious: 1}
	s.Recompute()
	line := StatsLine(s, false)
	for _, want := range []string{"total=4", "safe=2 (50.0%)", "suspicious=1 (25.0%)", "malicious=1 (25.0%)"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestConnectivityLine_Plain(t *testing.T) {
	t.Parallel()

	if got := ConnectivityLine(true, false); got != "[live]" {
		t.Errorf("connected line = %q", got)
	}
	if got := ConnectivityLine(false, false); got != "[disconnected]" {
		t.Errorf("disconnected line = %q", got)
	}
}

func TestIsTerminal_NonFileWriter(t *testing.T) {
	t.Parallel()

	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}

func TestClassificationStyle(t *testing.T) {
	t.Parallel()

	if ClassificationStyle(verdict.Malicious).GetForeground() != MaliciousColor {
		t.Error("malicious should use the red style")
	}
	if ClassificationStyle(verdict.Safe).GetForeground() != SafeColor {
		t.Error("safe should use the green style")
	}
	if ClassificationStyle("").GetForeground() != SafeColor {
		t.Error("unknown classification should fall back to the safe style")
	}
}
