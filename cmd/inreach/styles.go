package main

import "github.com/charmbracelet/lipgloss"

// Color palette shared by every console view
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // primary accent
	mintGreen   = lipgloss.Color("#A8E6CF") // sent, completed
	amber       = lipgloss.Color("#FCD34D") // skipped, waiting
	errorRed    = lipgloss.Color("203")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	textStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	sentStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	skippedStyle = lipgloss.NewStyle().
			Foreground(amber)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorRed)

	columnHeaderStyle = lipgloss.NewStyle().
				Foreground(salmonPink).
				Bold(true).
				PaddingRight(2)

	cellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

func summaryBoxStyle(success bool) lipgloss.Style {
	border := mintGreen
	if !success {
		border = errorRed
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

// statusStyle colors run and email statuses alike
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "Sent", "Completed":
		return sentStyle
	case "Skipped", "Interrupted", "Running":
		return skippedStyle
	case "Failed":
		return failedStyle
	default:
		return textStyle
	}
}
