package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"campbot/internal/eventbus"
	"campbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *"},
		{in: "@every 1m", kind: SpecCron, cron: "@every 1m"},
		{in: "03:30", kind: SpecCron, cron: "30 3 * * *"},
		{in: "0:05", kind: SpecCron, cron: "5 0 * * *"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{in: "every: 2h30m", kind: SpecInterval, every: 150 * time.Minute},
		{in: "cron:@daily", kind: SpecCron, cron: "@daily"},
		{in: "", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "interval:soon", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			ps, err := ParseSchedule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tc.in, ps)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
			}
			if ps.Kind != tc.kind || ps.Cron != tc.cron || ps.Every != tc.every {
				t.Fatalf("ParseSchedule(%q) = %+v", tc.in, ps)
			}
		})
	}
}

func TestAddScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := s.AddSchedule("bad", "61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for minute 61")
	}
	if err := s.AddSchedule("", "1m", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRegisterReplaceRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	noop := func(context.Context) error { return nil }
	if err := s.AddSchedule("audit.prune", "03:30", time.Minute, noop); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.AddSchedule("audit.prune", "04:00", time.Minute, noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddInterval("debounce.prune", time.Minute, 0, noop); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if !snap.Running || len(snap.Schedules) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	next := s.NextRun("audit.prune")
	if next.IsZero() || next.Hour() != 4 || next.Minute() != 0 {
		t.Fatalf("next audit.prune = %v, want 04:00", next)
	}
	for _, it := range snap.Schedules {
		if it.Name == "debounce.prune" && (it.Spread < 0 || it.Spread >= time.Minute) {
			t.Fatalf("spread = %v", it.Spread)
		}
	}

	if !s.Remove("audit.prune") || s.Remove("audit.prune") {
		t.Fatal("Remove should succeed once")
	}
	if got := len(s.Snapshot().Schedules); got != 1 {
		t.Fatalf("schedules after remove = %d", got)
	}
}

func TestRunNowRecordsHistoryAndEvent(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, logx.Nop(), bus)
	var deadline atomic.Bool
	_ = s.AddSchedule("audit.prune", "03:30", 50*time.Millisecond, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return errors.New("disk full")
	})

	err := s.RunNow(context.Background(), "audit.prune")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("RunNow err = %v", err)
	}
	if !deadline.Load() {
		t.Fatal("job context has no deadline")
	}
	hist := s.Snapshot().History
	if len(hist) != 1 || hist[0].Name != "audit.prune" || hist[0].Error != "disk full" {
		t.Fatalf("history = %+v", hist)
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.HousekeepingDone {
			t.Fatalf("event = %s", ev.Type)
		}
	default:
		t.Fatal("no event published")
	}

	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("missing job err = %v", err)
	}
}

func TestDisabledDoesNotTrigger(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop(), nil)
	_ = s.AddInterval("tick", time.Second, 0, func(context.Context) error { return nil })
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if s.Snapshot().Running {
		t.Fatal("disabled scheduler should not run cron")
	}

	s.Apply(Config{Enabled: true})
	if !s.Snapshot().Running {
		t.Fatal("enabling should start cron")
	}
	s.Apply(Config{Enabled: false})
	if s.Snapshot().Running {
		t.Fatal("disabling should stop cron")
	}
}

func TestStartupSpreadDelaysFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 5, 27, 0, 0, time.UTC)
	sched, jitter := intervalSchedule(time.Minute, now)
	first := sched.Next(now)
	if want := now.Add(time.Minute + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	// cron.Every rounds later runs down to whole seconds
	if d := sched.Next(first).Sub(first); d <= 59*time.Second || d > time.Minute {
		t.Fatalf("second run %v after first", d)
	}
}
