// Package ui renders the console view of the live feed: one styled line per
// verdict plus a stats footer and a connectivity indicator. It is a thin
// presentation layer; anything graphical belongs to the browser dashboard,
// which is outside this repository.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ColorEnabled reports whether styled output should be produced for w,
// honoring NO_COLOR and dumb terminals.
func ColorEnabled(w io.Writer) bool {
	if !IsTerminal(w) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// FeedLine formats one verdict for the console.
func FeedLine(ev verdict.Event, color bool) string {
	if !color {
		return fmt.Sprintf("[%-10s] %3d  %s  (%s)", ev.Classification, ev.RiskScore, ev.URL, ev.Channel)
	}
	return fmt.Sprintf("%s %3d  %s  %s",
		ClassificationStyle(ev.Classification).Render(fmt.Sprintf("[%-10s]", ev.Classification)),
		ev.RiskScore,
		URLStyle.Render(ev.URL),
		MutedStyle.Render("("+ev.Channel+")"),
	)
}

// StatsLine formats the aggregate totals footer.
func StatsLine(s verdict.Stats, color bool) string {
	if !color {
		return fmt.Sprintf("total=%d safe=%d (%.1f%%) suspicious=%d (%.1f%%) malicious=%d (%.1f%%)",
			s.Total, s.Safe, s.SafePct, s.Suspicious, s.SuspiciousPct, s.Malicious, s.MaliciousPct)
	}
	return fmt.Sprintf("total=%d %s %s %s",
		s.Total,
		SafeStyle.Render(fmt.Sprintf("safe=%d (%.1f%%)", s.Safe, s.SafePct)),
		SuspiciousStyle.Render(fmt.Sprintf("suspicious=%d (%.1f%%)", s.Suspicious, s.SuspiciousPct)),
		MaliciousStyle.Render(fmt.Sprintf("malicious=%d (%.1f%%)", s.Malicious, s.MaliciousPct)),
	)
}

// ConnectivityLine formats the transport liveness indicator.
func ConnectivityLine(connected bool, color bool) string {
	if connected {
		if color {
			return ConnectedStyle.Render("● live")
		}
		return "[live]"
	}
	if color {
		return DisconnectedStyle.Render("○ disconnected")
	}
	return "[disconnected]"
}
