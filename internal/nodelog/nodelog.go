// Package nodelog is the node's structured logger: a thin wrapper
// around log/slog keyed by component name, with leveled calls taking
// alternating key/value pairs.
package nodelog

import (
	"log/slog"
	"os"
)

// Level gates which messages reach the underlying handler.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel maps an environment-style level name to a Level,
// defaulting to LevelInfo for an unrecognized or empty value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var level = new(slog.LevelVar)

func init() {
	level.Set(LevelInfo)
}

// SetLevel changes the process-wide minimum level. Safe to call
// concurrently with logging: every Logger shares this LevelVar through
// its handler.
func SetLevel(l Level) {
	level.Set(l)
}

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

// Logger logs messages tagged with a fixed "component" attribute.
type Logger struct {
	slog *slog.Logger
}

// New returns a Logger for component, writing to stderr.
func New(component string) *Logger {
	return &Logger{slog: base.With("component", component)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.slog.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.slog.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.slog.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.slog.Error(msg, kv...) }
