package main

import "charm.land/lipgloss/v2"

// Styled terminal rendering of a task's outcome when stdout is a TTY,
// grounded on the teacher's tui/styles dialogs' plain
// lipgloss.NewStyle().Render() usage, narrowed to the handful of
// states a single CLI task summary needs instead of a themed panel
// system.
var (
	styleSuccess = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	styleFailure = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	styleLabel   = lipgloss.NewStyle().Faint(true)
)

func renderOutcome(ok bool) string {
	if ok {
		return styleSuccess.Render("OK")
	}
	return styleFailure.Render("FAILED")
}
