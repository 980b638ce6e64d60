package hooks

import (
	"context"
	"log/slog"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// Compile-time interface check.
var _ Hook = (*LoggerHook)(nil)

// LoggerHook traces pipeline events through slog at debug level, with scan
// failures and policy actions promoted to info/warn.
type LoggerHook struct {
	logger *slog.Logger
}

// NewLoggerHook creates a logging hook. logger may be nil for the default.
func NewLoggerHook(logger *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(logger)}
}

// EventTypes returns nil: the logger traces everything.
func (h *LoggerHook) EventTypes() []EventType { return nil }

// OnEvent logs the event.
func (h *LoggerHook) OnEvent(_ context.Context, event Event) error {
	switch e := event.(type) {
	case ScanEvent:
		lvl := slog.LevelDebug
		if e.Outcome == OutcomeFailed {
			lvl = slog.LevelWarn
		}
		h.logger.Log(context.Background(), lvl, "scan",
			"scan_id", e.ScanID, "url", e.URL, "outcome", e.Outcome,
			"severity", e.Severity, "latency", e.Latency)
	case PolicyEvent:
		h.logger.Info("policy action",
			"action", e.Action, "url", e.URL, "severity", e.Severity, "scan_id", e.ScanID)
	case VerdictEvent:
		h.logger.Debug("verdict ingested",
			"url", e.Verdict.URL, "classification", e.Verdict.Classification,
			"risk_score", e.Verdict.RiskScore, "channel", e.Verdict.Channel,
			"superseded", e.Superseded)
	case FeedEvent:
		h.logger.Debug("feed updated", "size", e.Size, "total", e.Stats.Total)
	case BaselineEvent:
		h.logger.Info("stats baseline reconciled", "total", e.Stats.Total)
	case SettingEvent:
		h.logger.Info("setting changed", "key", e.Key, "old", e.Old, "new", e.New)
	default:
		h.logger.Debug("pipeline event", "type", event.EventType())
	}
	return nil
}
