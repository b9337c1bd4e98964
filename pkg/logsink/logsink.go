// Package logsink implements the net's log output: a
// plain-text preamble/header/data-lines/footer sink, a round
// aggregator feeding it, and a terminal progress reporter.
package logsink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Column names one logged value: an aggregator name crossed with the
// storage tag it summarizes.
type Column struct {
	Aggregator string
	StorageTag string
}

func (c Column) String() string {
	return c.Aggregator + "." + c.StorageTag
}

// LogTuple is one scheduled log event: the simulated time plus one
// value per configured Column, in the same order.
type LogTuple struct {
	Time   float64
	Values []float64
}

// Logger is the sink a net's aggregator writes rounds to.
type Logger interface {
	Log(tuple LogTuple) error
	Close() error
}

// FileLogger writes the run log as plain text: a preamble (start
// timestamp + init params), a header naming columns, one data line
// per LogTuple, and a footer (end timestamp) on Close.
type FileLogger struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer // nil when writing to a caller-supplied stream
	columns []Column
}

// NewFileLoggerPath opens (creating parent directories as needed) a
// log file at path and writes the preamble/header immediately.
func NewFileLoggerPath(path string, params map[string]string, columns []Column) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, util.NewConfigError("logsink.NewFileLoggerPath", fmt.Sprintf("creating log directory: %v", err))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, util.NewConfigError("logsink.NewFileLoggerPath", fmt.Sprintf("creating log file: %v", err))
	}
	return newFileLogger(f, f, params, columns)
}

// NewFileLoggerDir auto-generates a file name from params and
// opens it under dir.
func NewFileLoggerDir(dir string, params map[string]string, columns []Column) (*FileLogger, error) {
	return NewFileLoggerPath(filepath.Join(dir, generatedFileName(params)), params, columns)
}

// NewFileLoggerWriter wraps a caller-supplied stream; Close flushes but does not
// close w.
func NewFileLoggerWriter(w io.Writer, params map[string]string, columns []Column) (*FileLogger, error) {
	return newFileLogger(w, nil, params, columns)
}

func newFileLogger(w io.Writer, closer io.Closer, params map[string]string, columns []Column) (*FileLogger, error) {
	fl := &FileLogger{w: bufio.NewWriter(w), closer: closer, columns: columns}
	fl.writePreamble(params)
	fl.writeHeader()
	return fl, fl.w.Flush()
}

func (fl *FileLogger) writePreamble(params map[string]string) {
	fmt.Fprintf(fl.w, "# start: %s\n", time.Now().UTC().Format(time.RFC3339))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(fl.w, "# param: %s=%s\n", k, params[k])
	}
}

func (fl *FileLogger) writeHeader() {
	fmt.Fprint(fl.w, "time")
	for _, c := range fl.columns {
		fmt.Fprintf(fl.w, " %s", c.String())
	}
	fmt.Fprint(fl.w, "\n")
}

// Log writes one data line: the tuple's time followed by its values
// in column order.
func (fl *FileLogger) Log(tuple LogTuple) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fmt.Fprintf(fl.w, "%g", tuple.Time)
	for _, v := range tuple.Values {
		fmt.Fprintf(fl.w, " %g", v)
	}
	fmt.Fprint(fl.w, "\n")
	return fl.w.Flush()
}

// Close writes the footer, flushes, and closes the underlying file if
// this logger owns one.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fmt.Fprintf(fl.w, "# end: %s\n", time.Now().UTC().Format(time.RFC3339))
	if err := fl.w.Flush(); err != nil {
		return err
	}
	if fl.closer != nil {
		return fl.closer.Close()
	}
	return nil
}

func generatedFileName(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	name := "fcpp"
	for _, k := range keys {
		name += fmt.Sprintf("_%s-%s", k, params[k])
	}
	return name + ".log"
}
