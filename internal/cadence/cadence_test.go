package cadence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "villagekeep/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		kind    SpecKind
		every   time.Duration
		cron    string
		src     string
		wantErr bool
	}{
		{in: "1m", kind: SpecInterval, every: time.Minute, src: "duration"},
		{in: "00:05", kind: SpecInterval, every: 5 * time.Minute, src: "hhmm"},
		{in: "every:2h30m", kind: SpecInterval, every: 150 * time.Minute, src: "duration"},
		{in: "interval:01:00", kind: SpecInterval, every: time.Hour, src: "hhmm"},
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *", src: "cron"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly", src: "cron"},
		{in: "cron:0 3 * * *", kind: SpecCron, cron: "0 3 * * *", src: "cron"},
		{in: "", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "-1m", wantErr: true},
		{in: "00:75", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.kind || got.Every != tt.every || got.Cron != tt.cron || got.Source != tt.src {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	p, _ := ParseSchedule("90s")
	if got := p.CronSpec(); got != "@every 1m30s" {
		t.Fatalf("CronSpec=%q", got)
	}
}

func TestSetValidatesAndUpserts(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Set(Job{Name: "bad", Schedule: "61 * * * *", Run: noop}); err == nil {
		t.Fatal("invalid cron accepted")
	}
	if err := s.Set(Job{Name: "", Schedule: "1m", Run: noop}); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.Set(Job{Name: "driver", Schedule: "1m", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(Job{Name: "driver", Schedule: "2m", Run: noop}); err != nil {
		t.Fatal(err)
	}
	ents := s.Entries()
	if len(ents) != 1 || ents[0].Spec != "@every 2m0s" {
		t.Fatalf("entries: %+v", ents)
	}
	if !s.Remove("driver") || s.Remove("driver") {
		t.Fatal("remove should succeed once")
	}
}

func TestRunsAndCountsFailures(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	var n atomic.Int32
	err := s.Set(Job{Name: "tick", Schedule: "every:1s", Run: func(ctx context.Context) error {
		n.Add(1)
		return errors.New("nope")
	}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n.Load() == 0 {
		t.Fatal("job never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if e := s.Entries()[0]; e.Failures == 0 || e.Next.IsZero() {
		t.Fatalf("entry: %+v", e)
	}
}

func TestDisabledDoesNotStart(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop())
	s.Start(context.Background())
	if s.c != nil {
		t.Fatal("disabled service started cron")
	}
	s.Apply(Config{Enabled: true})
	if s.c == nil {
		t.Fatal("enabling via Apply should start cron")
	}
	s.Apply(Config{Enabled: false})
	if s.c != nil {
		t.Fatal("disabling via Apply should stop cron")
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"1m", "00:05", "*/5 * * * *", "@daily", "cron:0 0 * * *"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Fatalf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "soon", "every blue moon", "cron:61 * * * *"} {
		if err := ValidateSchedule(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
