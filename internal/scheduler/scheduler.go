package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwellhq/inkwell/internal/observability"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// FireFunc handles one schedule firing. Errors are logged; the schedule
// keeps its timer either way.
type FireFunc func(ctx context.Context, sched models.Schedule) error

// Scheduler tracks one tenant's active schedules and fires them when due.
type Scheduler struct {
	tenantID  string
	schedules store.ScheduleStore
	fire      FireFunc

	logger       *slog.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	tickInterval time.Duration

	mu       sync.Mutex
	started  bool
	entries  map[string]*entry
	inFlight map[string]bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type entry struct {
	sched   models.Schedule
	nextRun time.Time
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics configures the metrics collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the scheduler tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// New creates a scheduler for one tenant. Call Start to load persisted
// schedules and begin ticking.
func New(tenantID string, schedules store.ScheduleStore, fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		tenantID:     tenantID,
		schedules:    schedules,
		fire:         fire,
		logger:       slog.Default().With("component", "scheduler", "tenant", tenantID),
		now:          time.Now,
		tickInterval: time.Second,
		entries:      make(map[string]*entry),
		inFlight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the tenant's active schedules and begins the tick loop.
// Calling Start on a started scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	active, err := s.schedules.ListActive(ctx, s.tenantID)
	if err != nil {
		return err
	}
	for _, sched := range active {
		if err := s.Register(*sched); err != nil {
			s.logger.Warn("schedule skipped", "schedule", sched.ID, "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.runDue(loopCtx)
			}
		}
	}()
	return nil
}

// Stop halts the tick loop and waits for in-flight firings, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds a schedule to the tick loop. The expression must already
// be validated; Register still rejects unparseable ones.
func (s *Scheduler) Register(sched models.Schedule) error {
	next, err := Next(sched, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[sched.ID] = &entry{sched: sched, nextRun: next}
	s.mu.Unlock()
	s.logger.Info("schedule registered", "schedule", sched.ID, "next_run", next)
	return nil
}

// Unregister removes a schedule from the tick loop. Unknown ids are
// ignored.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Registered returns the ids currently tracked, for status reporting.
func (s *Scheduler) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

// RunOnce fires due schedules immediately and returns how many were
// dispatched (primarily for tests).
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	dispatched := 0

	s.mu.Lock()
	var due []*entry
	for id, e := range s.entries {
		if now.Before(e.nextRun) {
			continue
		}
		if s.inFlight[id] {
			s.logger.Warn("previous firing still running, skipping", "schedule", id)
			if s.metrics != nil {
				s.metrics.ScheduleFires.WithLabelValues("skipped").Inc()
			}
			s.advanceLocked(e, now)
			continue
		}
		s.inFlight[id] = true
		s.advanceLocked(e, now)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		sched := e.sched
		dispatched++
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fireOne(ctx, sched)
		}()
	}
	return dispatched
}

// advanceLocked moves an entry's next run past now. Callers hold s.mu.
func (s *Scheduler) advanceLocked(e *entry, now time.Time) {
	next, err := Next(e.sched, now)
	if err != nil {
		s.logger.Error("schedule became unparseable, removing", "schedule", e.sched.ID, "error", err)
		delete(s.entries, e.sched.ID)
		return
	}
	e.nextRun = next
}

func (s *Scheduler) fireOne(ctx context.Context, sched models.Schedule) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sched.ID)
		s.mu.Unlock()
	}()

	s.logger.Info("schedule fired", "schedule", sched.ID, "name", sched.Name)
	if err := s.fire(ctx, sched); err != nil {
		s.logger.Error("schedule firing failed", "schedule", sched.ID, "error", err)
		if s.metrics != nil {
			s.metrics.ScheduleFires.WithLabelValues("error").Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ScheduleFires.WithLabelValues("ok").Inc()
	}
	if err := s.schedules.SetLastRun(ctx, sched.ID); err != nil {
		s.logger.Warn("recording last run failed", "schedule", sched.ID, "error", err)
	}
}
