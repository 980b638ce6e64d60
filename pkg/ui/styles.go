package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Classification color palette.
var (
	SafeColor       = lipgloss.Color("#00D26A") // green
	SuspiciousColor = lipgloss.Color("#FFD93D") // yellow
	MaliciousColor  = lipgloss.Color("#FF3838") // red
	MutedColor      = lipgloss.Color("#6B7280") // gray
)

// Pre-configured styles.
var (
	SafeStyle       = lipgloss.NewStyle().Foreground(SafeColor)
	SuspiciousStyle = lipgloss.NewStyle().Foreground(SuspiciousColor).Bold(true)
	MaliciousStyle  = lipgloss.NewStyle().Foreground(MaliciousColor).Bold(true)
	URLStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#4D96FF"))
	MutedStyle      = lipgloss.NewStyle().Foreground(MutedColor)

	ConnectedStyle    = lipgloss.NewStyle().Foreground(SafeColor).Bold(true)
	DisconnectedStyle = lipgloss.NewStyle().Foreground(MaliciousColor).Bold(true)
)

// ClassificationStyle returns the style for a verdict classification.
func ClassificationStyle(c verdict.Classification) lipgloss.Style {
	switch c {
	case verdict.Malicious:
		return MaliciousStyle
	case verdict.Suspicious:
		return SuspiciousStyle
	default:
		return SafeStyle
	}
}
