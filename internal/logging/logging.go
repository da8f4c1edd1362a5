// Package logging builds the process loggers.
//
// Every component takes a *log.Logger. Sink owns where those loggers write:
// an in-memory Ring that the log panel reads, a size-rotated file when
// enabled, and optionally one more writer such as stderr. Create one Sink at
// startup and Close it at shutdown.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Sink.
type Options struct {
	// File enables the rotating log file when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// RingSize is the number of lines kept in memory. Zero uses DefaultRingSize.
	RingSize int

	// Extra receives a copy of every line, e.g. os.Stderr for headless commands.
	Extra io.Writer
}

// DefaultRingSize is used when Options.RingSize is zero.
const DefaultRingSize = 500

// Sink fans log output out to its writers.
type Sink struct {
	ring *Ring
	file *lumberjack.Logger
	out  io.Writer
}

// New creates a Sink. The log file directory is created if needed.
func New(opts Options) (*Sink, error) {
	size := opts.RingSize
	if size <= 0 {
		size = DefaultRingSize
	}
	s := &Sink{ring: NewRing(size)}
	writers := []io.Writer{s.ring}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, s.file)
	}
	if opts.Extra != nil {
		writers = append(writers, opts.Extra)
	}
	s.out = io.MultiWriter(writers...)
	return s, nil
}

// Discard returns a Sink that only feeds its Ring.
func Discard() *Sink {
	s, _ := New(Options{RingSize: 1})
	return s
}

// Logger returns a logger writing to the sink with a "[component] " prefix.
func (s *Sink) Logger(component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(s.out, prefix, log.LstdFlags)
}

// Ring returns the in-memory buffer.
func (s *Sink) Ring() *Ring {
	return s.ring
}

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Ring keeps the last N log lines. It is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	lines []string
	start int
	full  bool
	seq   uint64
}

// NewRing creates a Ring holding up to size lines.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{lines: make([]string, 0, size)}
}

// Write implements io.Writer. Each newline-terminated line becomes one entry.
func (r *Ring) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	if text == "" {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		r.push(line)
	}
	return len(p), nil
}

func (r *Ring) push(line string) {
	r.seq++
	if !r.full {
		r.lines = append(r.lines, line)
		if len(r.lines) == cap(r.lines) {
			r.full = true
		}
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % len(r.lines)
}

// Lines returns the buffered lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.start:]...)
	out = append(out, r.lines[:r.start]...)
	return out
}

// Seq counts the lines ever written. It changes whenever Lines does.
func (r *Ring) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Clear drops every buffered line.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = r.lines[:0]
	r.start = 0
	r.full = false
	r.seq++
}
