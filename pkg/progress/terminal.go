package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Terminal prints one progress line per completed username
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewTerminal writes to out. Colors are enabled only when out is a terminal.
func NewTerminal(out io.Writer) *Terminal {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Terminal{out: out, color: color}
}

// Report prints line, coloring the outcome marker when enabled
func (t *Terminal) Report(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.paint(line))
}

func (t *Terminal) paint(line string) string {
	if !t.color {
		return line
	}
	if i := strings.Index(line, failMark); i >= 0 {
		return line[:i] + Red(line[i:])
	}
	if strings.HasSuffix(line, okMark) {
		return strings.TrimSuffix(line, okMark) + Green(okMark)
	}
	return line
}

// PrintSummary prints the end-of-run totals
func PrintSummary(out io.Writer, runID string, total, succeeded, failed, skipped int, elapsed string) {
	fmt.Fprintf(out, "\n%s %s\n", Cyan("Run"), runID)
	fmt.Fprintf(out, "  %s %d processed in %s\n", Dim("•"), total, elapsed)
	fmt.Fprintf(out, "  %s %s\n", Dim("•"), Green(fmt.Sprintf("%d succeeded", succeeded)))
	if failed > 0 {
		fmt.Fprintf(out, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d failed", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(out, "  %s %s\n", Dim("•"), Yellow(fmt.Sprintf("%d skipped (already done)", skipped)))
	}
}
