// Package output provides consistent CLI output formatting and
// progress rendering.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for the CLI. On a terminal,
// progress lines update in place; piped output gets plain lines.
type Writer struct {
	out   io.Writer
	isTTY bool

	progressActive bool
}

// New creates a Writer, detecting whether out is a terminal.
func New(out io.Writer) *Writer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, isTTY: isTTY}
}

// Status prints a status message with an icon. Write errors are
// intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	w.endProgress()
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("✗", msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	w.endProgress()
	_, _ = fmt.Fprintln(w.out)
}

// Progress renders one progress update. On a terminal the line is
// rewritten in place; otherwise only completion lines are printed so
// logs stay readable.
func (w *Writer) Progress(label string, current, total int) {
	if total <= 0 {
		return
	}
	if !w.isTTY {
		if current >= total {
			_, _ = fmt.Fprintf(w.out, "%s: %d/%d\n", label, current, total)
		}
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r%-10s [%s] %3.0f%% (%d/%d)", label, bar, pct, current, total)
	w.progressActive = true
	if current >= total {
		w.endProgress()
	}
}

// endProgress terminates an in-place progress line before other output.
func (w *Writer) endProgress() {
	if w.progressActive {
		_, _ = fmt.Fprintln(w.out)
		w.progressActive = false
	}
}

// renderBar creates a text progress bar.
func renderBar(current, total, width int) string {
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
