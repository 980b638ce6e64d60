package verdict

import (
	"log/slog"
	"time"
)

// RawEvent is the superset payload shape the transport channels deliver.
// Different channels spell the verdict and the score differently; the alias
// fields here absorb all observed spellings so one decode covers every
// transport.
type RawEvent struct {
	URL string `json:"url"`

	// Verdict aliases, first non-empty wins in the order listed.
	Risk            string `json:"risk,omitempty"`
	ThreatLevel     string `json:"threat_level,omitempty"`
	ClassificationS string `json:"classification,omitempty"`

	// Score aliases, first non-nil wins in the order listed. Float because
	// some producers emit fractional scores.
	Score            *float64 `json:"score,omitempty"`
	RiskScore        *float64 `json:"risk_score,omitempty"`
	OverallRiskScore *float64 `json:"overall_risk_score,omitempty"`

	ThreatNames []string `json:"threat_names,omitempty"`

	// TimestampMS is epoch milliseconds; zero means "now".
	TimestampMS int64 `json:"timestamp,omitempty"`
}

// verdictField returns the first populated verdict alias.
func (r *RawEvent) verdictField() string {
	for _, v := range []string{r.Risk, r.ThreatLevel, r.ClassificationS} {
		if v != "" {
			return v
		}
	}
	return ""
}

// scoreField returns the first populated score alias and whether one was set.
func (r *RawEvent) scoreField() (int, bool) {
	for _, p := range []*float64{r.Score, r.RiskScore, r.OverallRiskScore} {
		if p != nil {
			return int(*p + 0.5), true
		}
	}
	return 0, false
}

// Normalize resolves a RawEvent into the canonical Event for the named
// channel. Unrecognized or absent verdict strings default to Safe with a
// logged warning; the score is clamped to [0,100]; a missing timestamp is
// stamped with the current time. Normalization never fails: a malformed
// payload degrades to a safe default rather than being dropped silently.
func (r *RawEvent) Normalize(channel string, logger *slog.Logger) Event {
	if logger == nil {
		logger = slog.Default()
	}

	c, ok := ParseClassification(r.verdictField())
	if !ok {
		logger.Warn("unrecognized verdict, defaulting to SAFE",
			"channel", channel,
			"url", r.URL,
			"verdict", r.verdictField())
		c = Safe
	}

	score, _ := r.scoreField()

	ts := time.Now()
	if r.TimestampMS > 0 {
		ts = time.UnixMilli(r.TimestampMS)
	}

	return Event{
		URL:            r.URL,
		Classification: c,
		RiskScore:      ClampScore(score),
		Timestamp:      ts,
		ThreatNames:    r.ThreatNames,
		Channel:        channel,
	}
}
