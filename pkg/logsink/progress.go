package logsink

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"
)

// ConsoleProgress is an append-only terminal progress reporter for a
// running net: one line per scheduled tick, never rewriting prior
// output, so it stays safe for pipes and CI logs.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool

	total int
}

// NewConsoleProgress creates a ConsoleProgress writing to stderr so it
// doesn't interleave with a log sink writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{W: os.Stderr, Verbose: verbose}
}

// RunStart announces the run's scope.
func (p *ConsoleProgress) RunStart(deviceCount int, totalRounds int) {
	p.total = totalRounds
	fmt.Fprintf(p.W, "fcppsim: %d devices, %d scheduled rounds\n", deviceCount, totalRounds)
}

// Tick reports progress at simulated time now, having completed count
// rounds so far. Output is truncated to the detected terminal width so
// long lines don't wrap unpredictably.
func (p *ConsoleProgress) Tick(now float64, count int) {
	line := fmt.Sprintf("  t=%.3f  rounds=%d", now, count)
	if p.total > 0 {
		line += fmt.Sprintf("  (%d/%d)", count, p.total)
	}
	fmt.Fprintln(p.W, truncateToWidth(line, terminalWidth()))
}

// RoundErrors reports a tally of round/transport/protocol errors seen
// so far, when non-empty.
func (p *ConsoleProgress) RoundErrors(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprint(p.W, "  errors:")
	for kind, n := range counts {
		fmt.Fprintf(p.W, " %s=%d", kind, n)
	}
	fmt.Fprintln(p.W)
}

// RunEnd announces completion.
func (p *ConsoleProgress) RunEnd(count int) {
	fmt.Fprintf(p.W, "fcppsim: done, %d rounds executed\n", count)
}

// terminalWidth returns the terminal column count for stdout. COLUMNS
// overrides the detected width; 0 signals no constraint should be
// applied (not a terminal and COLUMNS unset).
func terminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 0 {
			return n
		}
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return w
}

func truncateToWidth(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}
