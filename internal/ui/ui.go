// Package ui provides terminal rendering helpers for the ret CLI.
//
// Styles degrade to plain text when stdout is not a terminal or the
// terminal reports no color support, so output stays pipe-friendly.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var colorEnabled = detectColor()

func detectColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// ColorEnabled reports whether styled output is active.
func ColorEnabled() bool { return colorEnabled }

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle   = lipgloss.NewStyle().Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func render(s lipgloss.Style, text string) string {
	if !colorEnabled {
		return text
	}
	return s.Render(text)
}

// RenderPass styles success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles errors.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles informational highlights.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderBold styles emphasized text.
func RenderBold(s string) string { return render(boldStyle, s) }

// RenderHeader styles section headings.
func RenderHeader(s string) string { return render(headerStyle, s) }

// RenderOverdue styles overdue review markers.
func RenderOverdue(s string) string { return render(overdueStyle, s) }

// RenderColumn draws a bordered kanban column of the given width.
func RenderColumn(width int, content string) string {
	if !colorEnabled {
		return content
	}
	return columnStyle.Width(width).Render(content)
}

// JoinColumns lays kanban columns out side by side, top-aligned.
func JoinColumns(cols ...string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// PriorityMarker returns a colored glyph for a topic priority.
func PriorityMarker(priority string) string {
	switch priority {
	case "high":
		return RenderFail("●")
	case "low":
		return RenderMuted("●")
	default:
		return RenderWarn("●")
	}
}

// TerminalWidth returns the current terminal width, or a sane default
// when stdout is not a terminal.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}
