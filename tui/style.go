package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles used throughout the TUI.
var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleAction = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleFlow = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228")).
			Bold(true)

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	styleBoard = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	styleHeading = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true)

	styleChoice = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	styleSelected = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true)
)

// lineKind identifies the type of a log line for styling.
type lineKind int

const (
	kindAction lineKind = iota
	kindFlow
	kindSystem
	kindError
	kindTrace
)

// classifyLine determines what kind of log line this is from the trace
// text produced by cli.FormatEvent.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[error]"):
		return kindError
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case strings.HasPrefix(line, "state "), strings.HasPrefix(line, "game over"):
		return kindFlow
	case strings.HasPrefix(line, "phase "), strings.HasPrefix(line, "turn over"):
		return kindTrace
	case strings.HasPrefix(line, "["):
		return kindAction
	default:
		return kindTrace
	}
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindFlow:
		return styleFlow.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleAction.Render(line)
	}
}
