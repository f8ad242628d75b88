package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		timezone string
		wantErr  bool
	}{
		{"five fields", "0 9 * * 1", "", false},
		{"six fields", "30 0 9 * * 1", "", false},
		{"descriptor", "@daily", "", false},
		{"with timezone", "0 9 * * *", "Europe/Berlin", false},
		{"empty", "", "", true},
		{"garbage", "every tuesday", "", true},
		{"too many fields", "0 0 9 * * 1 2026", "", true},
		{"bad timezone", "0 9 * * *", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr, tt.timezone)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q, %q) error = %v, wantErr %v", tt.expr, tt.timezone, err, tt.wantErr)
			}
		})
	}
}

func TestNextHonorsTimezone(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	next, err := Next(models.Schedule{CronExpr: "0 9 * * *", Timezone: "America/New_York"}, now)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	// 09:00 in New York on Jan 2 is 14:00 UTC.
	want := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
	if !next.UTC().Equal(want) {
		t.Errorf("Next() = %v, want %v", next.UTC(), want)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSchedulerFiresDueSchedule(t *testing.T) {
	ctx := context.Background()
	schedules := store.NewMemorySet().Schedules
	sched := &models.Schedule{
		TenantID: "t1",
		Name:     "daily",
		CronExpr: "* * * * *",
		Format:   models.FormatSinglePost,
		Active:   true,
	}
	if err := schedules.Create(ctx, sched); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	fired := make(chan models.Schedule, 1)
	s := New("t1", schedules, func(_ context.Context, sc models.Schedule) error {
		fired <- sc
		return nil
	}, WithNow(clock.Now))

	if err := s.Register(*sched); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if n := s.RunOnce(ctx); n != 0 {
		t.Fatalf("fired %d schedules before due time", n)
	}

	clock.Advance(90 * time.Second)
	if n := s.RunOnce(ctx); n != 1 {
		t.Fatalf("RunOnce() = %d, want 1", n)
	}
	select {
	case got := <-fired:
		if got.ID != sched.ID {
			t.Errorf("fired schedule %q, want %q", got.ID, sched.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("firing never reached handler")
	}

	// Last run is recorded after a successful firing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := schedules.Get(ctx, sched.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.LastRun.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("last run never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchedulerSkipsOverlappingFiring(t *testing.T) {
	ctx := context.Background()
	schedules := store.NewMemorySet().Schedules
	sched := &models.Schedule{TenantID: "t1", Name: "busy", CronExpr: "* * * * *", Active: true}
	if err := schedules.Create(ctx, sched); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	started := make(chan struct{})
	release := make(chan struct{})
	s := New("t1", schedules, func(context.Context, models.Schedule) error {
		close(started)
		<-release
		return nil
	}, WithNow(clock.Now))

	if err := s.Register(*sched); err != nil {
		t.Fatal(err)
	}

	clock.Advance(90 * time.Second)
	if n := s.RunOnce(ctx); n != 1 {
		t.Fatalf("first RunOnce() = %d, want 1", n)
	}
	<-started

	// The first firing is still running when the next tick comes due.
	clock.Advance(90 * time.Second)
	if n := s.RunOnce(ctx); n != 0 {
		t.Errorf("overlapping RunOnce() = %d, want 0", n)
	}
	close(release)
}

func TestSchedulerKeepsTimerAfterFailure(t *testing.T) {
	ctx := context.Background()
	schedules := store.NewMemorySet().Schedules
	sched := &models.Schedule{TenantID: "t1", Name: "flaky", CronExpr: "* * * * *", Active: true}
	if err := schedules.Create(ctx, sched); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	fired := make(chan struct{}, 2)
	s := New("t1", schedules, func(context.Context, models.Schedule) error {
		fired <- struct{}{}
		return errors.New("pipeline blew up")
	}, WithNow(clock.Now))

	if err := s.Register(*sched); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		clock.Advance(90 * time.Second)
		if n := s.RunOnce(ctx); n != 1 {
			t.Fatalf("RunOnce() #%d = %d, want 1", i+1, n)
		}
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("firing #%d never reached handler", i+1)
		}
	}

	// Stop waits out the in-flight firings; a failed firing must not
	// count as a run.
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := schedules.Get(ctx, sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastRun.IsZero() {
		t.Errorf("last run recorded despite failures: %v", got.LastRun)
	}
}

func TestSchedulerUnregister(t *testing.T) {
	ctx := context.Background()
	schedules := store.NewMemorySet().Schedules
	sched := &models.Schedule{TenantID: "t1", Name: "gone", CronExpr: "* * * * *", Active: true}
	if err := schedules.Create(ctx, sched); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	s := New("t1", schedules, func(context.Context, models.Schedule) error {
		t.Error("unregistered schedule fired")
		return nil
	}, WithNow(clock.Now))

	if err := s.Register(*sched); err != nil {
		t.Fatal(err)
	}
	s.Unregister(sched.ID)

	clock.Advance(90 * time.Second)
	if n := s.RunOnce(ctx); n != 0 {
		t.Errorf("RunOnce() = %d after unregister", n)
	}
}
