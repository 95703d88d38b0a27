package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	warningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// RenderSuccess colors s as a success marker.
func RenderSuccess(s string) string { return successStyle.Render(s) }

// RenderError colors s as a failure marker.
func RenderError(s string) string { return errorStyle.Render(s) }

// RenderWarning colors s as a warning marker.
func RenderWarning(s string) string { return warningStyle.Render(s) }

// RenderMuted colors s as secondary detail.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderResult renders a one-line execution summary.
// Examples:
//
//	✓ Completed in 1.2s (exit 0)
//	✗ Failed in 0.4s (exit 127)
//	✗ Aborted after 0.1s (exit status unknown)
func RenderResult(exitCode int, exitKnown, failed, aborted bool, d time.Duration) string {
	elapsed := mutedStyle.Render(formatDuration(d))
	switch {
	case aborted:
		return fmt.Sprintf("%s Aborted after %s %s",
			errorStyle.Render(SymbolFail), elapsed, mutedStyle.Render("(exit status unknown)"))
	case !exitKnown:
		return fmt.Sprintf("%s Completed in %s %s",
			warningStyle.Render(SymbolWarn), elapsed, mutedStyle.Render("(exit status unknown)"))
	case failed:
		return fmt.Sprintf("%s Failed in %s %s",
			errorStyle.Render(SymbolFail), elapsed, mutedStyle.Render(fmt.Sprintf("(exit %d)", exitCode)))
	default:
		return fmt.Sprintf("%s Completed in %s %s",
			successStyle.Render(SymbolSuccess), elapsed, mutedStyle.Render(fmt.Sprintf("(exit %d)", exitCode)))
	}
}

// RenderDuplicate renders a skipped-as-duplicate notice with suggestions.
func RenderDuplicate(message string, suggestions []string) string {
	var b strings.Builder
	b.WriteString(warningStyle.Render(SymbolSkipped))
	b.WriteString(" ")
	b.WriteString(message)
	for _, s := range suggestions {
		b.WriteString("\n  ")
		b.WriteString(mutedStyle.Render("→ " + s))
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
