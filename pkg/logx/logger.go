package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeLayout
}

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Field adds one key to an event. Later fields with the same key win.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field            { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field          { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field                { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err records err under "err"; nil is skipped.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Stack attaches a recovered panic's stack trace.
func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if stack = strings.TrimSpace(stack); stack != "" {
			e.Str("stack", stack)
		}
	}
}

// Logger writes through either a Service (following its reconfiguration)
// or a fixed zerolog root. The zero value discards everything.
type Logger struct {
	svc    *Service
	fixed  *zerolog.Logger
	fields []Field
}

var nopRoot = zerolog.Nop()

// Nop returns a logger that never writes.
func Nop() Logger { return Logger{fixed: &nopRoot} }

// NewWriter returns a logger emitting JSON lines to w, for tests and tools.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, LevelInfo)).With().Timestamp().Logger()
	return Logger{fixed: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.fixed == nil && len(l.fields) == 0 }

func (l Logger) zl() *zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.root.Load()
	case l.fixed != nil:
		return l.fixed
	}
	return &nopRoot
}

// Enabled reports whether a line at level would reach the sinks.
func (l Logger) Enabled(level Level) bool { return level >= l.zl().GetLevel() }

func (l Logger) With(fields ...Field) Logger {
	if len(fields) > 0 {
		l.fields = append(l.fields[:len(l.fields):len(l.fields)], fields...)
	}
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(LevelTrace, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l Logger) emit(level Level, msg string, fields []Field) {
	e := l.zl().WithLevel(level)
	if e == nil {
		return
	}
	// file:line of the Info/Warn/... call site
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

func parseLevel(s string, def Level) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl < LevelTrace || lvl > LevelError {
		return def
	}
	return lvl
}
