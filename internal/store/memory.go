package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwellhq/inkwell/pkg/models"
)

// NewMemorySet returns a fully in-memory store set for tests and local
// experimentation.
func NewMemorySet() *Set {
	return &Set{
		Tenants:       &memTenantStore{tenants: make(map[string]*models.Tenant)},
		Stages:        &memStageStore{stages: make(map[string]*models.StageDefinition)},
		Schedules:     &memScheduleStore{schedules: make(map[string]*models.Schedule)},
		Drafts:        &memDraftStore{drafts: make(map[string]*models.ContentDraft)},
		Conversations: &memConversationStore{},
	}
}

type memTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

func (s *memTenantStore) Create(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = tenant.CreatedAt
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *memTenantStore) Get(_ context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTenantStore) GetByChatID(_ context.Context, chatID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.ChatID == chatID && t.Active {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memTenantStore) ListActive(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Tenant
	for _, t := range s.tenants {
		if t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memTenantStore) Update(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenant.ID]; !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *memTenantStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Active = false
	t.UpdatedAt = time.Now()
	return nil
}

type memStageStore struct {
	mu     sync.RWMutex
	stages map[string]*models.StageDefinition
}

func (s *memStageStore) Create(_ context.Context, stage *models.StageDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	stage.CreatedAt = time.Now()
	cp := *stage
	s.stages[stage.ID] = &cp
	return nil
}

func (s *memStageStore) ListActive(_ context.Context, tenantID string) ([]*models.StageDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StageDefinition
	for _, st := range s.stages {
		if st.TenantID == tenantID && st.Active && st.Position != nil {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Position < *out[j].Position })
	return out, nil
}

func (s *memStageStore) List(_ context.Context, tenantID string) ([]*models.StageDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StageDefinition
	for _, st := range s.stages {
		if st.TenantID == tenantID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Position, out[j].Position
		switch {
		case pi != nil && pj != nil:
			return *pi < *pj
		case pi != nil:
			return true
		case pj != nil:
			return false
		default:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
	})
	return out, nil
}

func (s *memStageStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stages[id]
	if !ok {
		return ErrNotFound
	}
	st.Active = false
	st.Position = nil
	return nil
}

func (s *memStageStore) SetPosition(_ context.Context, id string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stages[id]
	if !ok {
		return ErrNotFound
	}
	st.Position = &position
	return nil
}

func (s *memStageStore) NextPosition(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next := 1
	for _, st := range s.stages {
		if st.TenantID == tenantID && st.Position != nil && *st.Position >= next {
			next = *st.Position + 1
		}
	}
	return next, nil
}

type memScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]*models.Schedule
}

func (s *memScheduleStore) Create(_ context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.CreatedAt = time.Now()
	cp := *schedule
	s.schedules[schedule.ID] = &cp
	return nil
}

func (s *memScheduleStore) Get(_ context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (s *memScheduleStore) List(_ context.Context, tenantID string) ([]*models.Schedule, error) {
	return s.list(tenantID, false)
}

func (s *memScheduleStore) ListActive(_ context.Context, tenantID string) ([]*models.Schedule, error) {
	return s.list(tenantID, true)
}

func (s *memScheduleStore) list(tenantID string, activeOnly bool) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sc := range s.schedules {
		if sc.TenantID != tenantID {
			continue
		}
		if activeOnly && !sc.Active {
			continue
		}
		cp := *sc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memScheduleStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	sc.Active = active
	return nil
}

func (s *memScheduleStore) SetLastRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	sc.LastRun = time.Now()
	return nil
}

type memDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]*models.ContentDraft
}

func (s *memDraftStore) Create(_ context.Context, draft *models.ContentDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	draft.CreatedAt = time.Now()
	cp := *draft
	cp.AssetRefs = append([]string(nil), draft.AssetRefs...)
	s.drafts[draft.ID] = &cp
	return nil
}

func (s *memDraftStore) Get(_ context.Context, id string) (*models.ContentDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	cp.AssetRefs = append([]string(nil), d.AssetRefs...)
	return &cp, nil
}

func (s *memDraftStore) AttachAssets(_ context.Context, id string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.AssetRefs = append(d.AssetRefs, urls...)
	return nil
}

func (s *memDraftStore) CountByTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.drafts {
		if d.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

type memConversationStore struct {
	mu      sync.Mutex
	entries []*models.ConversationEntry
}

func (s *memConversationStore) Append(_ context.Context, entries ...*models.ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = time.Now()
		cp := *e
		s.entries = append(s.entries, &cp)
	}
	return nil
}
