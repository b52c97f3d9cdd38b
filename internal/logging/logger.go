package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Flags selects which message categories are logged through Category.
type Flags int

const (
	FlagError Flags = 1 << iota
	FlagSend
	FlagReceive
	FlagConnections

	AllFlags     = FlagError | FlagSend | FlagReceive | FlagConnections
	DefaultFlags = FlagError | FlagConnections
)

var flagNames = map[string]Flags{
	"error":       FlagError,
	"send":        FlagSend,
	"receive":     FlagReceive,
	"connections": FlagConnections,
	"all":         AllFlags,
}

// ParseFlags converts a list of category names into a Flags mask.
// Unknown names are returned separately so callers can report them.
// An empty list yields DefaultFlags.
func ParseFlags(names []string) (Flags, []string) {
	if len(names) == 0 {
		return DefaultFlags, nil
	}
	var f Flags
	var unknown []string
	for _, n := range names {
		v, ok := flagNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		f |= v
	}
	return f, unknown
}

// Logger wraps zerolog to provide subsystem-scoped child loggers.
type Logger struct {
	zl    zerolog.Logger
	flags Flags
}

// New creates a root logger writing to the given writer at the specified level.
// If w is nil, defaults to pretty console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl, flags: DefaultFlags}
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger(), flags: l.flags}
}

// WithFlags returns a copy of the logger with the category mask replaced.
func (l *Logger) WithFlags(f Flags) *Logger {
	return &Logger{zl: l.zl, flags: f}
}

// Flags returns the enabled category mask.
func (l *Logger) Flags() Flags { return l.flags }

// Enabled reports whether any of the categories in f are enabled.
func (l *Logger) Enabled(f Flags) bool { return l.flags&f != 0 }

// Category returns an event for a message category, or nil when the
// category is disabled. zerolog treats a nil event as a no-op, so callers
// can chain on the result unconditionally.
func (l *Logger) Category(f Flags) *zerolog.Event {
	if !l.Enabled(f) {
		return nil
	}
	if f&FlagError != 0 {
		return l.zl.Error()
	}
	return l.zl.Info()
}

// Debug logs at debug level.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info logs at info level.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn logs at warn level.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error logs at error level.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog returns the underlying zerolog.Logger for advanced use.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "silent":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
