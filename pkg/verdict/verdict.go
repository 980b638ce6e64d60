// Package verdict defines the canonical data model for the scan pipeline.
// Every transport channel delivers its own payload shape; all of them are
// translated into the types here before any merging, deduplication, or
// counting happens.
package verdict

import (
	"net/url"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

// Classification is the three-way verdict for a scanned URL.
type Classification string

const (
	// Safe indicates no threat was found.
	Safe Classification = "SAFE"
	// Suspicious indicates indicators below the malicious threshold.
	Suspicious Classification = "SUSPICIOUS"
	// Malicious indicates a confirmed threat.
	Malicious Classification = "MALICIOUS"
)

// ParseClassification resolves the verdict strings used across channels into
// a Classification. The classification service reports BENIGN for clean
// content; the push channel and the extension bridge use SAFE. Matching is
// case-insensitive. ok is false for anything unrecognized.
func ParseClassification(s string) (c Classification, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAFE", "BENIGN", "CLEAN":
		return Safe, true
	case "SUSPICIOUS", "WARNING":
		return Suspicious, true
	case "MALICIOUS", "DANGEROUS", "PHISHING":
		return Malicious, true
	}
	return Safe, false
}

// Event is the canonical scan event consumed by the aggregator.
type Event struct {
	URL            string         `json:"url"`
	Classification Classification `json:"classification"`
	RiskScore      int            `json:"risk_score"`
	Timestamp      time.Time      `json:"timestamp"`
	ThreatNames    []string       `json:"threat_names,omitempty"`
	Channel        string         `json:"channel"`
}

// ThreatData is the immutable outcome of one completed classification call.
type ThreatData struct {
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Severity  int       `json:"severity"` // 0-10
	Timestamp time.Time `json:"timestamp"`
	ScanID    string    `json:"scan_id"`
	Threat    bool      `json:"is_threat"`
}

// Stats holds the running classification totals for the feed. Counts are
// authoritative; percentages are always derived from them.
type Stats struct {
	Total         int     `json:"total"`
	Safe          int     `json:"safe"`
	Suspicious    int     `json:"suspicious"`
	Malicious     int     `json:"malicious"`
	SafePct       float64 `json:"safe_pct"`
	SuspiciousPct float64 `json:"suspicious_pct"`
	MaliciousPct  float64 `json:"malicious_pct"`
}

// Recompute refreshes the derived percentage fields from the counts.
// All percentages are zero when the feed is empty.
func (s *Stats) Recompute() {
	if s.Total <= 0 {
		s.SafePct, s.SuspiciousPct, s.MaliciousPct = 0, 0, 0
		return
	}
	t := float64(s.Total)
	s.SafePct = float64(s.Safe) / t * 100
	s.SuspiciousPct = float64(s.Suspicious) / t * 100
	s.MaliciousPct = float64(s.Malicious) / t * 100
}

// ClampScore bounds a risk score to [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased scheme and
// host, default ports and fragments stripped. Unparseable input is returned
// trimmed so it still dedupes against itself.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	return u.String()
}

// Key hashes a URL into the 64-bit feed dedup key.
func Key(rawURL string) uint64 {
	return murmur3.Sum64([]byte(NormalizeURL(rawURL)))
}
