package cadence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "villagekeep/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

// Job is a named periodic callback.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	// Spread delays the first interval run by up to 30s.
	Spread bool
	Run    func(ctx context.Context) error
}

// Info describes a registered job.
type Info struct {
	Name     string
	Spec     string
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
}

type entry struct {
	job      Job
	spec     ParsedSpec
	id       cron.EntryID
	runs     atomic.Uint64
	failures atomic.Uint64
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	jobs   []*entry
}

// cronParser accepts both 5-field and 6-field (seconds) specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether Set would accept raw.
func ValidateSchedule(raw string) error {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		_, err = cronParser.Parse(ps.Cron)
	}
	return err
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		parser: cronParser,
		ctx:    context.Background(),
	}
}

// Set registers job, replacing any job with the same name.
func (s *Service) Set(job Job) error {
	name := strings.TrimSpace(job.Name)
	if name == "" {
		return errors.New("name required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run func required", name)
	}
	ps, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
	}
	job.Name = name

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	e := &entry{job: job, spec: ps}
	s.jobs = append(s.jobs, e)
	if s.c != nil {
		if err := s.scheduleLocked(e); err != nil {
			return err
		}
		s.log.Debug("job registered", logx.String("name", name), logx.String("spec", ps.CronSpec()), logx.String("next", s.previewLocked(ps, 3)))
	}
	return nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	for i, e := range s.jobs {
		if e.job.Name != name {
			continue
		}
		if s.c != nil && e.id != 0 {
			s.c.Remove(e.id)
		}
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start begins triggering. Jobs run with contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		s.ctx = ctx
	}
	if s.c != nil || !s.cfg.Enabled {
		if !s.cfg.Enabled {
			s.log.Info("cadence disabled")
		}
		return
	}
	s.startLocked()
	s.log.Info("cadence started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, e := range s.jobs {
		if err := s.scheduleLocked(e); err != nil {
			s.log.Error("job register failed", logx.String("name", e.job.Name), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop halts triggering and waits for running jobs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("cadence stopped")
}

// Apply swaps the config. A timezone change restarts the cron runner;
// toggling Enabled starts or stops it.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(context.Background())
	case !running && cfg.Enabled && !old.Enabled:
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.Start(ctx)
	case running && strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone):
		s.mu.Lock()
		c := s.c
		s.c = nil
		s.mu.Unlock()
		<-c.Stop().Done()
		s.mu.Lock()
		s.startLocked()
		s.mu.Unlock()
		s.log.Info("cadence restarted", logx.String("tz", strings.TrimSpace(cfg.Timezone)))
	}
}

// Entries reports registered jobs in registration order.
func (s *Service) Entries() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.jobs))
	for _, e := range s.jobs {
		in := Info{Name: e.job.Name, Spec: e.spec.CronSpec(), Runs: e.runs.Load(), Failures: e.failures.Load()}
		if s.c != nil && e.id != 0 {
			ce := s.c.Entry(e.id)
			in.Next, in.Prev = ce.Next, ce.Prev
		}
		out = append(out, in)
	}
	return out
}

func (s *Service) scheduleLocked(e *entry) error {
	job := cron.FuncJob(func() { s.run(e) })
	if e.spec.Kind == SpecInterval {
		if e.job.Spread {
			sched, jitter := spreadInterval(e.spec.Every, time.Now().In(s.loc), e.job.Name)
			e.id = s.c.Schedule(sched, job)
			s.log.Debug("startup spread", logx.String("name", e.job.Name), logx.Duration("jitter", jitter))
			return nil
		}
		e.id = s.c.Schedule(cron.Every(e.spec.Every), job)
		return nil
	}
	id, err := s.c.AddJob(e.spec.Cron, job)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

func (s *Service) run(e *entry) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := e.job.Run(ctx)
	e.runs.Add(1)
	if err != nil {
		e.failures.Add(1)
		s.log.Warn("job failed", logx.String("name", e.job.Name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Trace("job done", logx.String("name", e.job.Name), logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewLocked lists the next n run times, for debug logs only.
func (s *Service) previewLocked(ps ParsedSpec, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(ps.CronSpec())
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if t = sched.Next(t); t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}

// cronLogger routes robfig/cron's own logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
