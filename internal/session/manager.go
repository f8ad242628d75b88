// Package session runs one live chat session per active tenant: a
// transport connection, a scheduler, and a conversation engine, plus the
// failure policy that retires sessions whose chat has gone dead.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwellhq/inkwell/internal/flow"
	"github.com/inkwellhq/inkwell/internal/observability"
	"github.com/inkwellhq/inkwell/internal/renderer"
	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/internal/scheduler"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// TransportFactory opens the chat surface for one tenant. Production
// wires the Telegram transport; tests inject fakes.
type TransportFactory func(tenant *models.Tenant) (transport.Transport, error)

// Config wires a Manager. The flow-facing fields are shared across all
// sessions; transports and schedulers are built per tenant.
type Config struct {
	Stores           *store.Set
	States           flow.StateStore
	Classifier       flow.Classifier
	Pipeline         flow.Pipeline
	Limiter          flow.Limiter
	Renderer         renderer.Renderer
	Assets           flow.Store
	Publisher        flow.Publisher
	Instructor       runner.StageRunner
	TransportFactory TransportFactory

	// FailureThreshold is how many consecutive delivery failures retire a
	// session. Zero means the default.
	FailureThreshold int

	// Provider selects which tenant credential backs model calls:
	// "anthropic" (the default) or "openai".
	Provider string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate checks required dependencies and applies defaults.
func (c *Config) Validate() error {
	if c.Stores == nil {
		return fmt.Errorf("session: stores are required")
	}
	if c.Classifier == nil {
		return fmt.Errorf("session: classifier is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("session: pipeline is required")
	}
	if c.Limiter == nil {
		return fmt.Errorf("session: limiter is required")
	}
	if c.TransportFactory == nil {
		return fmt.Errorf("session: transport factory is required")
	}
	if c.States == nil {
		c.States = flow.NewMemoryStates()
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = transport.DefaultFailureThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type session struct {
	tenant    *models.Tenant
	transport *transport.Monitored
	engine    *flow.Engine
	scheduler *scheduler.Scheduler
	fires     chan fireRequest
	cancel    context.CancelFunc
	done      chan struct{}
}

// fireRequest carries a schedule firing onto the session's event loop,
// which reports the outcome back so the scheduler can record it.
type fireRequest struct {
	sched models.Schedule
	errc  chan error
}

// dispatchFire hands a firing to the event loop. The engine mutates chat
// state, so firings and inbound events must share one goroutine.
func (s *session) dispatchFire(ctx context.Context, sched models.Schedule) error {
	req := fireRequest{sched: sched, errc: make(chan error, 1)}
	select {
	case s.fires <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager owns the set of live tenant sessions.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "session"),
		sessions: make(map[string]*session),
	}, nil
}

// StartAll boots a session for every active tenant. A tenant that fails
// to start is logged and skipped; one bad bot token must not take the
// service down.
func (m *Manager) StartAll(ctx context.Context) error {
	tenants, err := m.cfg.Stores.Tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("session: list tenants: %w", err)
	}
	for _, tenant := range tenants {
		if err := m.Start(ctx, tenant); err != nil {
			m.logger.Error("session start failed, skipping tenant",
				"tenant", tenant.ID, "error", err)
		}
	}
	m.logger.Info("sessions started", "count", len(m.Active()))
	return nil
}

// Start boots one tenant's session. Starting an already-running tenant
// is a no-op.
func (m *Manager) Start(ctx context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	if _, ok := m.sessions[tenant.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	raw, err := m.cfg.TransportFactory(tenant)
	if err != nil {
		return fmt.Errorf("session: build transport: %w", err)
	}
	tenantID := tenant.ID
	monitored := transport.NewMonitored(raw, m.cfg.FailureThreshold, func() {
		// Runs on the sender's goroutine; retiring the session needs the
		// event loop to wind down first.
		go m.retireDead(tenantID)
	})

	// The scheduler fires into the engine; the engine registers new
	// schedules back into the scheduler.
	sess := &session{
		tenant:    tenant,
		transport: monitored,
		fires:     make(chan fireRequest),
		done:      make(chan struct{}),
	}
	sess.scheduler = scheduler.New(tenant.ID, m.cfg.Stores.Schedules,
		sess.dispatchFire,
		scheduler.WithLogger(m.cfg.Logger),
		scheduler.WithMetrics(m.cfg.Metrics),
	)
	sess.engine, err = flow.New(tenant, flow.Deps{
		Transport:  monitored,
		Stores:     m.cfg.Stores,
		States:     m.cfg.States,
		Classifier: m.cfg.Classifier,
		Pipeline:   m.cfg.Pipeline,
		Limiter:    m.cfg.Limiter,
		Registry:   sess.scheduler,
		Renderer:   m.cfg.Renderer,
		Assets:     m.cfg.Assets,
		Publisher:  m.cfg.Publisher,
		Instructor: m.cfg.Instructor,
		Logger:     m.cfg.Logger,
		Metrics:    m.cfg.Metrics,
		Provider:   m.cfg.Provider,
	})
	if err != nil {
		return err
	}

	if err := monitored.Open(ctx); err != nil {
		return fmt.Errorf("session: open transport: %w", err)
	}
	if err := sess.scheduler.Start(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = monitored.Close(closeCtx)
		return fmt.Errorf("session: start scheduler: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel

	m.mu.Lock()
	if _, ok := m.sessions[tenant.ID]; ok {
		// A concurrent Start won the race; wind this boot back down.
		m.mu.Unlock()
		cancel()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := sess.scheduler.Stop(closeCtx); err != nil {
			m.logger.Warn("duplicate scheduler stop failed", "tenant", tenant.ID, "error", err)
		}
		if err := monitored.Close(closeCtx); err != nil {
			m.logger.Warn("duplicate transport close failed", "tenant", tenant.ID, "error", err)
		}
		return nil
	}
	m.sessions[tenant.ID] = sess
	m.mu.Unlock()

	go m.eventLoop(loopCtx, sess)

	m.logger.Info("session started", "tenant", tenant.ID, "chat", tenant.ChatID)
	return nil
}

// eventLoop is the single consumer of a session's inbound events and
// schedule firings, keeping all chat state changes on one goroutine.
// Every inbound event proves the chat alive, so the failure count resets
// first.
func (m *Manager) eventLoop(ctx context.Context, sess *session) {
	defer close(sess.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.transport.Events():
			if !ok {
				return
			}
			sess.transport.ResetFailures()
			sess.engine.HandleEvent(ctx, ev)
		case req := <-sess.fires:
			req.errc <- sess.engine.HandleScheduleFire(ctx, req.sched)
		}
	}
}

// Stop winds one session down: schedules stop firing, the transport
// closes, the event loop drains. Stopping an unknown tenant is a no-op.
func (m *Manager) Stop(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[tenantID]
	if ok {
		delete(m.sessions, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := sess.scheduler.Stop(ctx); err != nil {
		m.logger.Warn("scheduler stop failed", "tenant", tenantID, "error", err)
	}
	if err := sess.transport.Close(ctx); err != nil {
		m.logger.Warn("transport close failed", "tenant", tenantID, "error", err)
	}
	sess.cancel()
	select {
	case <-sess.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.logger.Info("session stopped", "tenant", tenantID)
	return nil
}

// StopAll winds down every session.
func (m *Manager) StopAll(ctx context.Context) {
	for _, id := range m.Active() {
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Warn("session stop failed", "tenant", id, "error", err)
		}
	}
}

// Active lists the tenant ids with a running session.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// retireDead handles a session whose chat stopped accepting deliveries:
// the session stops, the tenant is deactivated in the store, and the
// operator hears about it through whichever session is still alive.
func (m *Manager) retireDead(tenantID string) {
	m.logger.Error("transport dead, retiring session", "tenant", tenantID)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.TransportFailures.WithLabelValues(tenantID).Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.Stop(ctx, tenantID); err != nil {
		m.logger.Warn("session stop during retire failed", "tenant", tenantID, "error", err)
	}
	if err := m.cfg.Stores.Tenants.Deactivate(ctx, tenantID); err != nil {
		m.logger.Error("tenant deactivation failed", "tenant", tenantID, "error", err)
	}
	m.notifyOperator(ctx, fmt.Sprintf(
		"Workspace %s was deactivated after repeated delivery failures. Fix the bot token or chat and reactivate it.", tenantID))
}

// notifyOperator sends through any live session, best effort.
func (m *Manager) notifyOperator(ctx context.Context, message string) {
	m.mu.Lock()
	remaining := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		remaining = append(remaining, sess)
	}
	m.mu.Unlock()

	for _, sess := range remaining {
		if err := sess.transport.SendText(ctx, message); err == nil {
			return
		}
	}
	if len(remaining) > 0 {
		m.logger.Warn("operator notification failed on every live session")
	}
}
