// Package log provides JSON structured logging with process context.
//
// Loggers write to stderr unless told otherwise: a worker's stdout carries
// protocol frames and nothing else.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context identifies the process a logger belongs to. Every entry carries
// these fields.
type Context struct {
	// Component is "worker" or "host".
	Component string
	// Checkpoint is the model checkpoint directory, if known.
	Checkpoint string
	// PID is the process id. Zero means the current process.
	PID int
}

func (c Context) fields() []zap.Field {
	pid := c.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	fs := []zap.Field{zap.String("component", c.Component), zap.Int("pid", pid)}
	if c.Checkpoint != "" {
		fs = append(fs, zap.String("checkpoint", c.Checkpoint))
	}
	return fs
}

// Logger writes leveled entries. Per-call data goes under a "fields" key.
type Logger struct {
	zap *zap.Logger
}

// NewLoggerWithLevel returns a logger writing entries at or above level to w.
func NewLoggerWithLevel(ctx Context, w io.Writer, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return build(ctx, w, lvl), nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "debug", "info", "warn", "error":
		return zapcore.ParseLevel(s)
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func build(ctx Context, w io.Writer, level zapcore.Level) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return &Logger{zap: zap.New(core).With(ctx.fields()...)}
}

// With returns a logger that adds fields to every entry as top-level keys.
func (l *Logger) With(fields map[string]any) *Logger {
	zs := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zs = append(zs, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zs...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.log(zapcore.DebugLevel, message, fields)
}

// Info logs at info level.
func (l *Logger) Info(message string, fields map[string]any) {
	l.log(zapcore.InfoLevel, message, fields)
}

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.log(zapcore.WarnLevel, message, fields)
}

// Error logs at error level.
func (l *Logger) Error(message string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, message, fields)
}

func (l *Logger) log(level zapcore.Level, message string, fields map[string]any) {
	if ce := l.zap.Check(level, message); ce != nil {
		if fields == nil {
			ce.Write()
			return
		}
		ce.Write(zap.Any("fields", fields))
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
