package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/cmbsolver/tuitcptester/pkg/types"
)

var (
	colorPrimary = lipgloss.Color("#5F87D7") // steel blue
	colorAccent  = lipgloss.Color("#FFAF5F") // amber
	colorText    = lipgloss.Color("#FAFAFA")
	colorSubtext = lipgloss.Color("#777777")
	colorGood    = lipgloss.Color("#5FD787")
	colorBad     = lipgloss.Color("#FF5F5F")

	styleWindow = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Align(lipgloss.Center)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	styleAppTitle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Padding(0, 1).
			Align(lipgloss.Center)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleRow = lipgloss.NewStyle().Foreground(colorText)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(12)

	styleValue = lipgloss.NewStyle().Foreground(colorText)

	styleSubtext = lipgloss.NewStyle().Foreground(colorSubtext)

	styleKey = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleFooter = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleTxHeader = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(colorAccent).
			Bold(true)

	styleScreenTooSmall = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true).
				Align(lipgloss.Center, lipgloss.Center)

	styleScrollTrack = lipgloss.NewStyle().Foreground(colorSubtext)
	styleScrollThumb = lipgloss.NewStyle().Foreground(colorPrimary)
)

func statusColor(st types.Status) lipgloss.Color {
	switch st {
	case types.StatusConnected, types.StatusListening:
		return colorGood
	case types.StatusConnecting:
		return colorAccent
	case types.StatusError:
		return colorBad
	default:
		return colorSubtext
	}
}
