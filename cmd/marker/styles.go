package main

import "github.com/charmbracelet/lipgloss"

// Color Palette
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	// gutterStyle renders the mark annotations left of each line.
	gutterStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true).
			Width(4)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Width(5).
			Align(lipgloss.Right).
			PaddingRight(1)

	textStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	cursorStyle = lipgloss.NewStyle().
			Reverse(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	listBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)
