package presentation

import "github.com/charmbracelet/lipgloss"

var (
	textMutedColor     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#696969"}
	textSecondaryColor = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"}
	statusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	statusWarningColor = lipgloss.AdaptiveColor{Light: "#B7950B", Dark: "#FECA57"}
	statusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	accentColor        = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(textMutedColor)
	scopeStyle   = lipgloss.NewStyle().Bold(true)
	idStyle      = lipgloss.NewStyle().Foreground(textSecondaryColor)
	successStyle = lipgloss.NewStyle().Foreground(statusSuccessColor)
	warningStyle = lipgloss.NewStyle().Foreground(statusWarningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(statusErrorColor)
)

// eventStyle colours a registry event type.
func eventStyle(eventType string) lipgloss.Style {
	switch eventType {
	case "published":
		return successStyle
	case "restored":
		return warningStyle
	case "removed":
		return errorStyle
	default:
		return mutedStyle
	}
}
