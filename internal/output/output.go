// Package output provides consistent, styled CLI output for the command
// surface: status lines, success/warning/error messages, and progress
// bars, rendered with lipgloss so they degrade gracefully on non-color
// terminals.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Writer formats status, progress, and tabular output to an underlying
// io.Writer. Each Writer carries its own lipgloss renderer bound to out,
// so color degrades to plain text automatically when out isn't a
// color-capable terminal (a pipe, a file, a non-interactive test buffer).
type Writer struct {
	out io.Writer

	success lipgloss.Style
	warning lipgloss.Style
	errorS  lipgloss.Style
	dim     lipgloss.Style
	barFill lipgloss.Style
}

// New creates a Writer over out.
func New(out io.Writer) *Writer {
	r := lipgloss.NewRenderer(out)
	return &Writer{
		out:     out,
		success: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		errorS:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
		barFill: r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Status prints a plain status line.
func (w *Writer) Status(msg string) {
	fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(format string, args ...any) {
	w.Status(fmt.Sprintf(format, args...))
}

// Success prints msg styled as a success.
func (w *Writer) Success(msg string) {
	fmt.Fprintln(w.out, w.success.Render("✓ ")+msg)
}

// Warning prints msg styled as a warning.
func (w *Writer) Warning(msg string) {
	fmt.Fprintln(w.out, w.warning.Render("! ")+msg)
}

// Error prints msg styled as an error.
func (w *Writer) Error(msg string) {
	fmt.Fprintln(w.out, w.errorS.Render("✗ ")+msg)
}

// Dim prints msg in a muted style, for secondary detail lines.
func (w *Writer) Dim(msg string) {
	fmt.Fprintln(w.out, w.dim.Render(msg))
}

// Newline prints a blank line.
func (w *Writer) Newline() {
	fmt.Fprintln(w.out)
}

// ProgressBar renders a filled/unfilled bar of the given width for
// current/total, without a trailing newline.
func (w *Writer) ProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return w.barFill.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
}
