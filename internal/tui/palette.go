package tui

import "github.com/charmbracelet/lipgloss"

// Colours adapt to the terminal background; Light is used on light themes.
var (
	colorText    = lipgloss.AdaptiveColor{Light: "#2E3440", Dark: "#E5E9F0"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#7A8291"}
	colorArchive = lipgloss.AdaptiveColor{Light: "#3B6E8F", Dark: "#88C0D0"}
	colorPage    = lipgloss.AdaptiveColor{Light: "#4C6A92", Dark: "#81A1C1"}
	colorSaved   = lipgloss.AdaptiveColor{Light: "#4F7A3A", Dark: "#A3BE8C"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#9A6B00", Dark: "#EBCB8B"}
	colorFailed  = lipgloss.AdaptiveColor{Light: "#A3303B", Dark: "#BF616A"}
)

// Styles shared by the progress view, the run summary and the scan listing.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorArchive)
	TextStyle    = lipgloss.NewStyle().Foreground(colorText)
	ValueStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	ArchiveStyle = lipgloss.NewStyle().Bold(true).Foreground(colorArchive)
	PageStyle    = lipgloss.NewStyle().Foreground(colorPage)
	BarStyle     = lipgloss.NewStyle().Foreground(colorSaved)
	WarnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	FailedStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorFailed)
)
