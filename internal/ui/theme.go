package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/modlist"
)

// Catppuccin Mocha palette, mutable so config can override.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#5a6278")
)

// Pre-built styles, rebuilt by rebuildStyles() after color changes.
var (
	styleHeader      lipgloss.Style
	styleMuted       lipgloss.Style
	styleInstalled   lipgloss.Style
	styleDownloaded  lipgloss.Style
	styleDownloading lipgloss.Style
	styleFailed      lipgloss.Style
	styleBarFilled   lipgloss.Style
	styleSparkline   lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleHeader = lipgloss.NewStyle().Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(ColorMuted)
	styleInstalled = lipgloss.NewStyle().Foreground(ColorGreen)
	styleDownloaded = lipgloss.NewStyle().Foreground(ColorBlue)
	styleDownloading = lipgloss.NewStyle().Foreground(ColorYellow)
	styleFailed = lipgloss.NewStyle().Foreground(ColorRed)
	styleBarFilled = lipgloss.NewStyle().Foreground(ColorGreen)
	styleSparkline = lipgloss.NewStyle().Foreground(ColorBlue)
}

// ApplyTheme overrides colors from a config ThemeConfig and rebuilds all styles.
func ApplyTheme(tc config.ThemeConfig) {
	if tc.Green != nil {
		ColorGreen = lipgloss.Color(*tc.Green)
	}
	if tc.Blue != nil {
		ColorBlue = lipgloss.Color(*tc.Blue)
	}
	if tc.Yellow != nil {
		ColorYellow = lipgloss.Color(*tc.Yellow)
	}
	if tc.Red != nil {
		ColorRed = lipgloss.Color(*tc.Red)
	}
	if tc.Muted != nil {
		ColorMuted = lipgloss.Color(*tc.Muted)
	}
	rebuildStyles()
}

// StatusStyle returns the style an archive status is printed in.
func StatusStyle(s modlist.Status) lipgloss.Style {
	switch s.Kind {
	case modlist.KindInstalled:
		return styleInstalled
	case modlist.KindDownloaded:
		return styleDownloaded
	case modlist.KindDownloading:
		return styleDownloading
	case modlist.KindFailed:
		return styleFailed
	default:
		return styleMuted
	}
}
