package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#15202b")).
			Background(lipgloss.Color("#4eb5f7")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4eb5f7")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#c92a2a", Dark: "#ff6b6b"}).
			Render

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#56FF4E")).
			Render

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#626262", Dark: "#A49FA5"})

	toastSuccessStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#15202b")).
				Background(lipgloss.Color("#56FF4E")).
				Padding(0, 1)

	toastErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#c92a2a")).
			Padding(0, 1)
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)
