package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig

	// RatePerSec caps lines per second below error level. 0 disables it.
	RatePerSec int
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const (
	timeLayout     = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile = "./villagekeep.log"
)

// Service owns the log sinks. Apply swaps them while Loggers are in use.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root    atomic.Pointer[zerolog.Logger]
	limiter atomic.Pointer[rate.Limiter]
	dropped atomic.Uint64
}

// New builds the service from cfg and returns it with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

// Dropped counts lines discarded by the rate limit.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Apply rebuilds the sinks for cfg. A file that cannot be opened is reported
// on stderr and skipped; console output is used when nothing else is left.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.RatePerSec > 0 {
		s.limiter.Store(rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec))
	} else {
		s.limiter.Store(nil)
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, console(os.Stdout))
	}
	old := s.file
	s.file = nil
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, console(os.Stdout))
	}

	var out zerolog.LevelWriter = zerolog.MultiLevelWriter(sinks...)
	if cfg.RatePerSec > 0 {
		out = limitedWriter{svc: s, next: out}
	}
	zl := zerolog.New(out).Level(parseLevel(cfg.Level, LevelInfo)).With().Timestamp().Logger()
	s.root.Store(&zl)

	if old != nil {
		_ = old.Close()
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func openLogFile(path string) (*os.File, error) {
	if path = strings.TrimSpace(path); path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeLayout}
}

// limitedWriter drops sub-error lines once the token bucket is empty.
type limitedWriter struct {
	svc  *Service
	next zerolog.LevelWriter
}

func (w limitedWriter) Write(p []byte) (int, error) { return w.WriteLevel(LevelInfo, p) }

func (w limitedWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if lim := w.svc.limiter.Load(); lim != nil && level < LevelError && !lim.Allow() {
		w.svc.dropped.Add(1)
		return len(p), nil
	}
	return w.next.WriteLevel(level, p)
}
