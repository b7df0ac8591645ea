// Package logging builds the prefixed *log.Logger values handed to the
// engine and the adapters.
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

// Level gates how much is written.
type Level int

const (
	// LevelDebug adds one line per item decision.
	LevelDebug Level = iota
	// LevelInfo writes run summaries and item failures.
	LevelInfo
	// LevelWarn writes nothing from the sync loggers.
	LevelWarn
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts debug, info or warn (case-insensitive). Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q (want debug, info or warn)", s)
}

// Options configures Setup.
type Options struct {
	// File is a log file path; empty writes to stderr.
	File string
	// Level gates output.
	Level Level
	// MaxSizeMB, MaxBackups and MaxAgeDays tune rotation of File.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logs hands out loggers sharing one destination.
type Logs struct {
	out    io.Writer
	closer io.Closer
	level  Level

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// Setup opens the destination. Close the result when done.
func Setup(opts Options) (*Logs, error) {
	l := &Logs{out: os.Stderr, level: opts.Level, loggers: make(map[string]*log.Logger)}
	if opts.File == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
		Compress:   true,
	}
	l.out = rotator
	l.closer = rotator
	return l, nil
}

// NewWriter builds Logs over an arbitrary writer.
func NewWriter(w io.Writer, level Level) *Logs {
	return &Logs{out: w, level: level, loggers: make(map[string]*log.Logger)}
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// Level returns the configured level.
func (l *Logs) Level() Level {
	return l.level
}

// Logger returns the info logger for a component, prefixed "[name] ".
func (l *Logs) Logger(name string) *log.Logger {
	if l.level > LevelInfo {
		return discard()
	}
	return l.get(name)
}

// Debug returns the per-item logger for a component. It discards unless the
// level is debug.
func (l *Logs) Debug(name string) *log.Logger {
	if l.level > LevelDebug {
		return discard()
	}
	return l.get(name)
}

func (l *Logs) get(name string) *log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lg, ok := l.loggers[name]; ok {
		return lg
	}
	lg := log.New(l.out, "["+name+"] ", log.LstdFlags)
	l.loggers[name] = lg
	return lg
}

// Close flushes and closes a log file. It is a no-op for stderr.
func (l *Logs) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
