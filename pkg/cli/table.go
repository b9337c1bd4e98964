// Package cli renders the column-aligned snapshots fcppsim prints at
// the end of a run: one row per live device, uid alongside whatever
// storage key the population's program was asked to report.
package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// escapeSeq strips ANSI escapes so width math counts visible runes,
// not control bytes.
var escapeSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// displayWidth is the column width s occupies on a terminal: ANSI
// codes don't count, and each rune (not byte) counts once.
func displayWidth(s string) int {
	return utf8.RuneCountInString(escapeSeq.ReplaceAllString(s, ""))
}

// terminalWidth reports the column count to wrap against. COLUMNS
// overrides detection (useful under a redirected pipe or in tests); 0
// means "no constraint", which is also what's returned when stdout
// isn't a terminal at all.
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

// Table accumulates rows for one aligned dump of device state. Headers
// and the dash divider are deferred to Flush so a population with no
// live devices left prints nothing at all, rather than a bare header.
type Table struct {
	headers []string
	rows    [][]string
	prefix  string
	rightOf map[int]bool // column indices to right-align, e.g. a uid or storage-value column
}

// NewTable starts a table with the given column headers — typically
// "UID" plus whatever storage key the running program reports.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// WithPrefix prepends prefix to every emitted line, for nesting a
// table inside other indented output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// RightAlign marks the given zero-based column indices as
// right-aligned — uid and numeric storage-value columns read better
// right-justified than the left-justified default used for free-form
// text columns.
func (t *Table) RightAlign(cols ...int) *Table {
	if t.rightOf == nil {
		t.rightOf = make(map[int]bool, len(cols))
	}
	for _, c := range cols {
		t.rightOf[c] = true
	}
	return t
}

// Row appends one device's values, in header order.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes the accumulated rows to stdout. A table with zero rows
// produces no output — there is nothing useful to say about an empty
// population snapshot.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i, v := range row {
			if i < len(widths) {
				if w := displayWidth(v); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	if tw := terminalWidth(); tw > 0 {
		widths = shrinkToFit(widths, t.headers, tw, displayWidth(t.prefix))
	}

	t.printRow(t.headers, widths)

	dividers := make([]string, len(t.headers))
	for i := range t.headers {
		dividers[i] = strings.Repeat("-", widths[i])
	}
	t.printRow(dividers, widths)

	for _, row := range t.rows {
		t.printRow(row, widths)
	}
}

// shrinkToFit narrows columns, widest first, until the rendered line
// fits termWidth. No column shrinks below its header's own width —
// past that point wrapping (see wrapCell) takes over instead.
func shrinkToFit(widths []int, headers []string, termWidth, prefixLen int) []int {
	result := make([]int, len(widths))
	copy(result, widths)

	floor := make([]int, len(headers))
	for i, h := range headers {
		floor[i] = displayWidth(h)
	}

	const colGap = 2

	for {
		lineWidth := prefixLen
		for _, w := range result {
			lineWidth += w
		}
		if len(result) > 1 {
			lineWidth += colGap * (len(result) - 1)
		}
		if lineWidth <= termWidth {
			break
		}

		widest, widestIdx := -1, -1
		for i, w := range result {
			if w > floor[i] && w > widest {
				widest = w
				widestIdx = i
			}
		}
		if widestIdx < 0 {
			break
		}

		need := lineWidth - termWidth
		room := result[widestIdx] - floor[widestIdx]
		if need > room {
			need = room
		}
		result[widestIdx] -= need
	}

	return result
}

// wrapCell breaks s into lines no wider than width. A cell that
// already fits is returned as-is, ANSI codes intact; otherwise the
// plain text is word-wrapped, hard-splitting any single word longer
// than width.
func wrapCell(s string, width int) []string {
	if width <= 0 || displayWidth(s) <= width {
		return []string{s}
	}

	plain := escapeSeq.ReplaceAllString(s, "")

	var lines []string
	var cur []rune
	curLen := 0

	flush := func() {
		lines = append(lines, string(cur))
		cur = cur[:0]
		curLen = 0
	}

	breakWord := func(wRunes []rune) {
		for len(wRunes) > 0 {
			take := len(wRunes)
			if take > width {
				take = width
			}
			cur = append(cur, wRunes[:take]...)
			curLen += take
			wRunes = wRunes[take:]
			if len(wRunes) > 0 {
				flush()
			}
		}
	}

	for _, word := range strings.Fields(plain) {
		wRunes := []rune(word)
		wLen := len(wRunes)

		switch {
		case curLen == 0:
			breakWord(wRunes)
		case curLen+1+wLen <= width:
			cur = append(cur, ' ')
			cur = append(cur, wRunes...)
			curLen += 1 + wLen
		default:
			flush()
			breakWord(wRunes)
		}
	}
	if curLen > 0 {
		flush()
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// pad right-pads (or, for a right-aligned column, left-pads) val to
// width visual characters.
func pad(val string, width int, rightAlign bool) string {
	gap := width - displayWidth(val)
	if gap < 0 {
		gap = 0
	}
	if rightAlign {
		return strings.Repeat(" ", gap) + val
	}
	return val + strings.Repeat(" ", gap)
}

// printRow renders one logical row, wrapping cells that overflow
// their column into additional physical lines.
func (t *Table) printRow(row []string, widths []int) {
	allLines := make([][]string, len(widths))
	maxLines := 1
	for i := range widths {
		val := ""
		if i < len(row) {
			val = row[i]
		}
		wrapped := wrapCell(val, widths[i])
		allLines[i] = wrapped
		if len(wrapped) > maxLines {
			maxLines = len(wrapped)
		}
	}

	for l := 0; l < maxLines; l++ {
		parts := make([]string, len(widths))
		for i := range widths {
			val := ""
			if l < len(allLines[i]) {
				val = allLines[i][l]
			}
			parts[i] = pad(val, widths[i], t.rightOf[i])
		}
		line := strings.TrimRight(strings.Join(parts, "  "), " ")
		fmt.Fprintln(os.Stdout, t.prefix+line)
	}
}
