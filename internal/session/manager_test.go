package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inkwellhq/inkwell/internal/intent"
	"github.com/inkwellhq/inkwell/internal/pipeline"
	"github.com/inkwellhq/inkwell/internal/ratelimit"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// chatTransport is a scriptable in-memory transport. sendErrs holds the
// outcome of each successive send.
type chatTransport struct {
	mu       sync.Mutex
	events   chan transport.Event
	sendErrs []error
	sends    int
	closed   bool
}

func newChatTransport() *chatTransport {
	return &chatTransport{events: make(chan transport.Event, 16)}
}

func (c *chatTransport) script(errs ...error) {
	c.mu.Lock()
	c.sendErrs = append(c.sendErrs, errs...)
	c.mu.Unlock()
}

func (c *chatTransport) Open(context.Context) error { return nil }

func (c *chatTransport) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *chatTransport) Events() <-chan transport.Event { return c.events }

func (c *chatTransport) send() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.sends < len(c.sendErrs) {
		err = c.sendErrs[c.sends]
	}
	c.sends++
	return err
}

func (c *chatTransport) SendText(context.Context, string) error          { return c.send() }
func (c *chatTransport) SendPhoto(context.Context, string, []byte) error { return c.send() }
func (c *chatTransport) SendMenu(context.Context, string, [][]transport.Button) error {
	return c.send()
}

type echoClassifier struct{}

func (echoClassifier) Classify(_ context.Context, _ *models.Tenant, msg string) (intent.Intent, error) {
	return intent.PlainReply{Text: "echo: " + msg}, nil
}

type nopPipeline struct{}

func (nopPipeline) Load(context.Context, string) ([]*models.StageDefinition, error) {
	return nil, nil
}

func (nopPipeline) RunResearch(context.Context, string, pipeline.TenantConfig, models.Format) (*pipeline.Research, error) {
	return &pipeline.Research{Text: "1. idea"}, nil
}

func (nopPipeline) RunFromResearch(context.Context, string, string, models.Format, []*models.StageDefinition, pipeline.TenantConfig) (*models.ContentDraft, error) {
	return &models.ContentDraft{Final: "done"}, nil
}

func (nopPipeline) RunFull(context.Context, string, models.Format, pipeline.TenantConfig) (*models.ContentDraft, error) {
	return &models.ContentDraft{Final: "done"}, nil
}

type fixture struct {
	manager    *Manager
	stores     *store.Set
	transports map[string]*chatTransport
	all        []*chatTransport
	factoryErr map[string]error
	mu         sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stores:     store.NewMemorySet(),
		transports: make(map[string]*chatTransport),
		factoryErr: make(map[string]error),
	}
	mgr, err := NewManager(Config{
		Stores:     f.stores,
		Classifier: echoClassifier{},
		Pipeline:   nopPipeline{},
		Limiter:    ratelimit.New(0, 0),
		TransportFactory: func(tenant *models.Tenant) (transport.Transport, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if err := f.factoryErr[tenant.ID]; err != nil {
				return nil, err
			}
			tr := newChatTransport()
			f.transports[tenant.ID] = tr
			f.all = append(f.all, tr)
			return tr, nil
		},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f.manager = mgr
	return f
}

func (f *fixture) addTenant(t *testing.T, id string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{ID: id, Name: id, ChatID: "chat-" + id, BotToken: "tok", Active: true}
	if err := f.stores.Tenants.Create(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}
	return tenant
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tenant := f.addTenant(t, "t1")
	ctx := context.Background()

	if err := f.manager.Start(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Start(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	if got := len(f.manager.Active()); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	f.manager.StopAll(ctx)
}

func TestStartAllSkipsBrokenTenant(t *testing.T) {
	f := newFixture(t)
	f.addTenant(t, "good")
	f.addTenant(t, "bad")
	f.factoryErr["bad"] = errors.New("invalid bot token")
	ctx := context.Background()

	if err := f.manager.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	active := f.manager.Active()
	if len(active) != 1 || active[0] != "good" {
		t.Errorf("active = %v, want [good]", active)
	}
	f.manager.StopAll(ctx)
}

func TestInboundEventAnswered(t *testing.T) {
	f := newFixture(t)
	tenant := f.addTenant(t, "t1")
	ctx := context.Background()
	if err := f.manager.Start(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	defer f.manager.StopAll(ctx)

	tr := f.transports["t1"]
	tr.events <- transport.Event{Kind: transport.EventText, ChatID: "chat-t1", Text: "hi"}
	waitFor(t, "reply", func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.sends >= 1
	})
}

func TestFourConsecutiveFailuresRetireSession(t *testing.T) {
	f := newFixture(t)
	alive := f.addTenant(t, "alive")
	_ = f.addTenant(t, "dying")
	ctx := context.Background()
	if err := f.manager.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	defer f.manager.StopAll(ctx)

	boom := errors.New("chat not found")
	f.transports["dying"].script(boom, boom, boom, boom)

	f.manager.mu.Lock()
	sess := f.manager.sessions["dying"]
	f.manager.mu.Unlock()
	for i := 0; i < 4; i++ {
		_ = sess.transport.SendText(ctx, "scheduled update")
	}

	waitFor(t, "session retirement", func() bool {
		for _, id := range f.manager.Active() {
			if id == "dying" {
				return false
			}
		}
		return true
	})
	waitFor(t, "tenant deactivation", func() bool {
		got, err := f.stores.Tenants.Get(ctx, "dying")
		return err == nil && !got.Active
	})

	// The surviving session carries the operator notice.
	waitFor(t, "operator notice", func() bool {
		tr := f.transports["alive"]
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.sends >= 1
	})
	if got, err := f.stores.Tenants.Get(ctx, alive.ID); err != nil || !got.Active {
		t.Errorf("healthy tenant affected: %+v, %v", got, err)
	}
}

func TestInboundResetKeepsSessionAlive(t *testing.T) {
	f := newFixture(t)
	tenant := f.addTenant(t, "t1")
	ctx := context.Background()
	if err := f.manager.Start(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	defer f.manager.StopAll(ctx)

	boom := errors.New("timeout")
	tr := f.transports["t1"]
	// Three failed deliveries, then the user's message gets through. The
	// reset on inbound keeps the count under the threshold.
	tr.script(boom, boom, boom, nil)

	f.manager.mu.Lock()
	sess := f.manager.sessions["t1"]
	f.manager.mu.Unlock()
	for i := 0; i < 3; i++ {
		_ = sess.transport.SendText(ctx, "scheduled update")
	}

	tr.events <- transport.Event{Kind: transport.EventText, ChatID: "chat-t1", Text: "still here"}
	waitFor(t, "reply after reset", func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.sends >= 4 && sess.transport.Failures() == 0
	})

	tr.script(boom, boom, boom)
	for i := 0; i < 3; i++ {
		_ = sess.transport.SendText(ctx, "scheduled update")
	}
	if got := sess.transport.Failures(); got != 3 {
		t.Errorf("failures = %d, want 3", got)
	}
	for _, id := range f.manager.Active() {
		if id == "t1" {
			return
		}
	}
	t.Error("session was retired despite reset")
}

func TestScheduleFireHandledByEventLoop(t *testing.T) {
	f := newFixture(t)
	tenant := f.addTenant(t, "t1")
	ctx := context.Background()
	if err := f.manager.Start(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	defer f.manager.StopAll(ctx)

	f.manager.mu.Lock()
	sess := f.manager.sessions["t1"]
	f.manager.mu.Unlock()

	// dispatchFire only returns once the event loop has run the firing,
	// so a nil error here means the loop handled it.
	sched := models.Schedule{ID: "s1", TenantID: "t1", Name: "daily", Format: models.FormatTweet, Active: true}
	if err := sess.dispatchFire(ctx, sched); err != nil {
		t.Fatalf("dispatchFire() error = %v", err)
	}

	tr := f.transports["t1"]
	tr.mu.Lock()
	sends := tr.sends
	tr.mu.Unlock()
	if sends == 0 {
		t.Error("firing produced no chat activity")
	}
}

func TestConcurrentStartsKeepOneSession(t *testing.T) {
	f := newFixture(t)
	tenant := f.addTenant(t, "t1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.manager.Start(ctx, tenant); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := len(f.manager.Active()); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	// Every transport that lost the race must have been closed again.
	f.mu.Lock()
	created := append([]*chatTransport(nil), f.all...)
	f.mu.Unlock()
	open := 0
	for _, tr := range created {
		tr.mu.Lock()
		if !tr.closed {
			open++
		}
		tr.mu.Unlock()
	}
	if open != 1 {
		t.Errorf("open transports = %d, want 1", open)
	}
	f.manager.StopAll(ctx)
}

func TestStopUnknownTenantIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Stop(context.Background(), "ghost"); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
