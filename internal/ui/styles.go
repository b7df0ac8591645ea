// Package ui renders terminal output for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#E65100", Dark: "#FFB74D"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E57373"}).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"})
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// DisableColor forces plain output, e.g. for --no-color or NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorEnabled reports whether the detected profile renders color.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// ConfigureColor disables color when asked to or when stdout is not a
// terminal that supports it.
func ConfigureColor(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || termenv.EnvNoColor() || !IsTerminal(os.Stdout) {
		DisableColor()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// Table writes rows with columns padded to the widest cell. The header row
// is emphasized.
func Table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style func(string) string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(c)
			}
			parts[i] = style(c) + strings.Repeat(" ", pad)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(header, func(s string) string { return headerStyle.Render(s) })
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
}
