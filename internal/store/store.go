// Package store persists Inkwell's entities. Interfaces are declared here
// at the consumer boundary; SQLite-backed implementations live in
// sqlite.go and in-memory implementations for tests in memory.go.
package store

import (
	"context"
	"errors"

	"github.com/inkwellhq/inkwell/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// TenantStore persists tenant accounts.
type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	Get(ctx context.Context, id string) (*models.Tenant, error)
	GetByChatID(ctx context.Context, chatID string) (*models.Tenant, error)
	ListActive(ctx context.Context) ([]*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	// Deactivate flips the active flag; the row is never deleted.
	Deactivate(ctx context.Context, id string) error
}

// StageStore persists pipeline stage definitions.
type StageStore interface {
	Create(ctx context.Context, stage *models.StageDefinition) error
	// ListActive returns the tenant's active, positioned stages ordered by
	// position ascending.
	ListActive(ctx context.Context, tenantID string) ([]*models.StageDefinition, error)
	List(ctx context.Context, tenantID string) ([]*models.StageDefinition, error)
	// Deactivate soft-deletes a stage by clearing its position and active
	// flag.
	Deactivate(ctx context.Context, id string) error
	// SetPosition moves a stage; callers keep positions unique per tenant.
	SetPosition(ctx context.Context, id string, position int) error
	// NextPosition returns one past the highest occupied position for the
	// tenant, or 1 for an empty pipeline.
	NextPosition(ctx context.Context, tenantID string) (int, error)
}

// ScheduleStore persists recurring triggers.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	Get(ctx context.Context, id string) (*models.Schedule, error)
	List(ctx context.Context, tenantID string) ([]*models.Schedule, error)
	ListActive(ctx context.Context, tenantID string) ([]*models.Schedule, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetLastRun(ctx context.Context, id string) error
}

// DraftStore persists pipeline artifacts.
type DraftStore interface {
	Create(ctx context.Context, draft *models.ContentDraft) error
	Get(ctx context.Context, id string) (*models.ContentDraft, error)
	// AttachAssets appends rendered asset URLs to an existing draft. This
	// is the only post-creation mutation the core performs.
	AttachAssets(ctx context.Context, id string, urls []string) error
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// ConversationStore appends chat transcript rows.
type ConversationStore interface {
	Append(ctx context.Context, entries ...*models.ConversationEntry) error
}

// Set bundles every store behind one handle.
type Set struct {
	Tenants       TenantStore
	Stages        StageStore
	Schedules     ScheduleStore
	Drafts        DraftStore
	Conversations ConversationStore

	closer func() error
}

// Close releases the underlying database, if any.
func (s *Set) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
