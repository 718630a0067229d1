package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	goodColor  = lipgloss.Color("#228B22")
	badColor   = lipgloss.Color("#CC3333")
	warnColor  = lipgloss.Color("#FF8800")
	infoColor  = lipgloss.Color("#4682B4")
	mutedColor = lipgloss.Color("#888888")
)

var (
	goodStyle  = lipgloss.NewStyle().Foreground(goodColor).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(badColor).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	siteStyle  = lipgloss.NewStyle().Foreground(infoColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	valueStyle = lipgloss.NewStyle().PaddingLeft(2)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)
