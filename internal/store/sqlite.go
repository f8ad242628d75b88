package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/inkwellhq/inkwell/internal/crypto"
	"github.com/inkwellhq/inkwell/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	bot_token TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	anthropic_key TEXT,
	openai_key TEXT,
	search_key TEXT,
	render_key TEXT,
	instagram_token TEXT,
	instagram_user TEXT,
	branding TEXT,
	owner_name TEXT,
	niche TEXT,
	specialization TEXT,
	tone TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tenants_chat ON tenants(chat_id);

CREATE TABLE IF NOT EXISTS stages (
	id TEXT PRIMARY KEY,
	tenant_id TEXT,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	role TEXT,
	instruction TEXT NOT NULL,
	position INTEGER,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stages_tenant ON stages(tenant_id, active, position);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	cron_expr TEXT NOT NULL,
	timezone TEXT NOT NULL,
	topics TEXT,
	format TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	last_run TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_tenant ON schedules(tenant_id, active);

CREATE TABLE IF NOT EXISTS content_drafts (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	topic TEXT NOT NULL,
	format TEXT NOT NULL,
	intermediate TEXT,
	final TEXT NOT NULL,
	asset_refs TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_tenant ON content_drafts(tenant_id);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_chat ON conversations(tenant_id, chat_id);
`

// NewSQLiteSet opens (or creates) a SQLite database at path and returns a
// store set backed by it. Tenant provider keys are sealed with sealer
// before they hit the file; pass nil to store them in the clear.
func NewSQLiteSet(path string, sealer *crypto.Sealer) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// modernc's driver serializes writes through a single connection.
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Set{
		Tenants:       &sqliteTenantStore{db: db, sealer: sealer},
		Stages:        &sqliteStageStore{db: db},
		Schedules:     &sqliteScheduleStore{db: db},
		Drafts:        &sqliteDraftStore{db: db},
		Conversations: &sqliteConversationStore{db: db},
		closer:        db.Close,
	}, nil
}

// Migrate applies the schema. Statements are idempotent so re-running is
// safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

type sqliteTenantStore struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

func (s *sqliteTenantStore) seal(v string) (string, error) {
	if s.sealer == nil {
		return v, nil
	}
	return s.sealer.Seal(v)
}

func (s *sqliteTenantStore) open(v string) string {
	if s.sealer == nil {
		return v
	}
	return s.sealer.OpenLenient(v)
}

func (s *sqliteTenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil || tenant.Name == "" {
		return fmt.Errorf("store: tenant name is required")
	}
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	branding, err := json.Marshal(tenant.Branding)
	if err != nil {
		return fmt.Errorf("store: marshal branding: %w", err)
	}

	keys := [5]string{}
	for i, v := range []string{tenant.AnthropicKey, tenant.OpenAIKey, tenant.SearchKey, tenant.RenderKey, tenant.InstagramToken} {
		sealed, err := s.seal(v)
		if err != nil {
			return fmt.Errorf("store: seal tenant key: %w", err)
		}
		keys[i] = sealed
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, active, bot_token, chat_id,
			anthropic_key, openai_key, search_key, render_key, instagram_token, instagram_user,
			branding, owner_name, niche, specialization, tone, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tenant.ID, tenant.Name, boolToInt(tenant.Active), tenant.BotToken, tenant.ChatID,
		keys[0], keys[1], keys[2], keys[3], keys[4], tenant.InstagramUser,
		string(branding), tenant.OwnerName, tenant.Niche, tenant.Specialization, tenant.Tone,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert tenant: %w", err)
	}
	return nil
}

const tenantColumns = `id, name, active, bot_token, chat_id,
	anthropic_key, openai_key, search_key, render_key, instagram_token, instagram_user,
	branding, owner_name, niche, specialization, tone, created_at, updated_at`

func (s *sqliteTenantStore) scan(row interface{ Scan(...any) error }) (*models.Tenant, error) {
	var t models.Tenant
	var active int
	var branding sql.NullString
	var keys [5]sql.NullString
	var igUser, owner, niche, spec, tone sql.NullString
	err := row.Scan(&t.ID, &t.Name, &active, &t.BotToken, &t.ChatID,
		&keys[0], &keys[1], &keys[2], &keys[3], &keys[4], &igUser,
		&branding, &owner, &niche, &spec, &tone, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan tenant: %w", err)
	}
	t.Active = active != 0
	t.AnthropicKey = s.open(keys[0].String)
	t.OpenAIKey = s.open(keys[1].String)
	t.SearchKey = s.open(keys[2].String)
	t.RenderKey = s.open(keys[3].String)
	t.InstagramToken = s.open(keys[4].String)
	t.InstagramUser = igUser.String
	t.OwnerName = owner.String
	t.Niche = niche.String
	t.Specialization = spec.String
	t.Tone = tone.String
	if branding.Valid && branding.String != "" && branding.String != "null" {
		if err := json.Unmarshal([]byte(branding.String), &t.Branding); err != nil {
			return nil, fmt.Errorf("store: unmarshal branding: %w", err)
		}
	}
	return &t, nil
}

func (s *sqliteTenantStore) Get(ctx context.Context, id string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return s.scan(row)
}

func (s *sqliteTenantStore) GetByChatID(ctx context.Context, chatID string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE chat_id = ? AND active = 1`, chatID)
	return s.scan(row)
}

func (s *sqliteTenantStore) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteTenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	branding, err := json.Marshal(tenant.Branding)
	if err != nil {
		return fmt.Errorf("store: marshal branding: %w", err)
	}
	keys := [5]string{}
	for i, v := range []string{tenant.AnthropicKey, tenant.OpenAIKey, tenant.SearchKey, tenant.RenderKey, tenant.InstagramToken} {
		sealed, err := s.seal(v)
		if err != nil {
			return fmt.Errorf("store: seal tenant key: %w", err)
		}
		keys[i] = sealed
	}
	tenant.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET name=?, active=?, bot_token=?, chat_id=?,
			anthropic_key=?, openai_key=?, search_key=?, render_key=?, instagram_token=?, instagram_user=?,
			branding=?, owner_name=?, niche=?, specialization=?, tone=?, updated_at=?
		 WHERE id=?`,
		tenant.Name, boolToInt(tenant.Active), tenant.BotToken, tenant.ChatID,
		keys[0], keys[1], keys[2], keys[3], keys[4], tenant.InstagramUser,
		string(branding), tenant.OwnerName, tenant.Niche, tenant.Specialization, tenant.Tone,
		tenant.UpdatedAt, tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update tenant: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteTenantStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: deactivate tenant: %w", err)
	}
	return requireRow(res)
}

type sqliteStageStore struct {
	db *sql.DB
}

func (s *sqliteStageStore) Create(ctx context.Context, stage *models.StageDefinition) error {
	if stage == nil || stage.Instruction == "" {
		return fmt.Errorf("store: stage instruction is required")
	}
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	stage.CreatedAt = time.Now().UTC()

	var pos any
	if stage.Position != nil {
		pos = *stage.Position
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (id, tenant_id, name, display_name, role, instruction, position, active, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		stage.ID, stage.TenantID, stage.Name, stage.DisplayName, stage.Role,
		stage.Instruction, pos, boolToInt(stage.Active), stage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert stage: %w", err)
	}
	return nil
}

func (s *sqliteStageStore) ListActive(ctx context.Context, tenantID string) ([]*models.StageDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, display_name, role, instruction, position, active, created_at
		 FROM stages
		 WHERE tenant_id = ? AND active = 1 AND position IS NOT NULL
		 ORDER BY position ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list active stages: %w", err)
	}
	defer rows.Close()
	return scanStages(rows)
}

func (s *sqliteStageStore) List(ctx context.Context, tenantID string) ([]*models.StageDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, display_name, role, instruction, position, active, created_at
		 FROM stages
		 WHERE tenant_id = ?
		 ORDER BY position IS NULL, position ASC, created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list stages: %w", err)
	}
	defer rows.Close()
	return scanStages(rows)
}

func scanStages(rows *sql.Rows) ([]*models.StageDefinition, error) {
	var out []*models.StageDefinition
	for rows.Next() {
		var st models.StageDefinition
		var tenantID, role sql.NullString
		var pos sql.NullInt64
		var active int
		if err := rows.Scan(&st.ID, &tenantID, &st.Name, &st.DisplayName, &role,
			&st.Instruction, &pos, &active, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan stage: %w", err)
		}
		st.TenantID = tenantID.String
		st.Role = role.String
		st.Active = active != 0
		if pos.Valid {
			p := int(pos.Int64)
			st.Position = &p
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *sqliteStageStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stages SET active = 0, position = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: deactivate stage: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStageStore) SetPosition(ctx context.Context, id string, position int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stages SET position = ? WHERE id = ?`, position, id)
	if err != nil {
		return fmt.Errorf("store: set stage position: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStageStore) NextPosition(ctx context.Context, tenantID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM stages WHERE tenant_id = ? AND position IS NOT NULL`, tenantID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: next position: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

type sqliteScheduleStore struct {
	db *sql.DB
}

func (s *sqliteScheduleStore) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule == nil || schedule.CronExpr == "" {
		return fmt.Errorf("store: cron expression is required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.CreatedAt = time.Now().UTC()

	topics, err := json.Marshal(schedule.Topics)
	if err != nil {
		return fmt.Errorf("store: marshal topics: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, tenant_id, name, cron_expr, timezone, topics, format, active, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		schedule.ID, schedule.TenantID, schedule.Name, schedule.CronExpr, schedule.Timezone,
		string(topics), string(schedule.Format), boolToInt(schedule.Active), schedule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert schedule: %w", err)
	}
	return nil
}

func (s *sqliteScheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, cron_expr, timezone, topics, format, active, last_run, created_at
		 FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (s *sqliteScheduleStore) List(ctx context.Context, tenantID string) ([]*models.Schedule, error) {
	return s.query(ctx,
		`SELECT id, tenant_id, name, cron_expr, timezone, topics, format, active, last_run, created_at
		 FROM schedules WHERE tenant_id = ? ORDER BY created_at`, tenantID)
}

func (s *sqliteScheduleStore) ListActive(ctx context.Context, tenantID string) ([]*models.Schedule, error) {
	return s.query(ctx,
		`SELECT id, tenant_id, name, cron_expr, timezone, topics, format, active, last_run, created_at
		 FROM schedules WHERE tenant_id = ? AND active = 1 ORDER BY created_at`, tenantID)
}

func (s *sqliteScheduleStore) query(ctx context.Context, q string, args ...any) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	var out []*models.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanSchedule(row interface{ Scan(...any) error }) (*models.Schedule, error) {
	var sc models.Schedule
	var topics sql.NullString
	var active int
	var lastRun sql.NullTime
	err := row.Scan(&sc.ID, &sc.TenantID, &sc.Name, &sc.CronExpr, &sc.Timezone,
		&topics, &sc.Format, &active, &lastRun, &sc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan schedule: %w", err)
	}
	sc.Active = active != 0
	if lastRun.Valid {
		sc.LastRun = lastRun.Time
	}
	if topics.Valid && topics.String != "" && topics.String != "null" {
		if err := json.Unmarshal([]byte(topics.String), &sc.Topics); err != nil {
			return nil, fmt.Errorf("store: unmarshal topics: %w", err)
		}
	}
	return &sc, nil
}

func (s *sqliteScheduleStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("store: set schedule active: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteScheduleStore) SetLastRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: set schedule last run: %w", err)
	}
	return requireRow(res)
}

type sqliteDraftStore struct {
	db *sql.DB
}

func (s *sqliteDraftStore) Create(ctx context.Context, draft *models.ContentDraft) error {
	if draft == nil || draft.Final == "" {
		return fmt.Errorf("store: draft final content is required")
	}
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	draft.CreatedAt = time.Now().UTC()

	refs, err := json.Marshal(draft.AssetRefs)
	if err != nil {
		return fmt.Errorf("store: marshal asset refs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_drafts (id, tenant_id, topic, format, intermediate, final, asset_refs, status, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		draft.ID, draft.TenantID, draft.Topic, string(draft.Format),
		draft.Intermediate, draft.Final, string(refs), string(draft.Status), draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert draft: %w", err)
	}
	return nil
}

func (s *sqliteDraftStore) Get(ctx context.Context, id string) (*models.ContentDraft, error) {
	var d models.ContentDraft
	var intermediate, refs sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, topic, format, intermediate, final, asset_refs, status, created_at
		 FROM content_drafts WHERE id = ?`, id).
		Scan(&d.ID, &d.TenantID, &d.Topic, &d.Format, &intermediate, &d.Final, &refs, &d.Status, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan draft: %w", err)
	}
	d.Intermediate = intermediate.String
	if refs.Valid && refs.String != "" && refs.String != "null" {
		if err := json.Unmarshal([]byte(refs.String), &d.AssetRefs); err != nil {
			return nil, fmt.Errorf("store: unmarshal asset refs: %w", err)
		}
	}
	return &d, nil
}

func (s *sqliteDraftStore) AttachAssets(ctx context.Context, id string, urls []string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	refs, err := json.Marshal(append(d.AssetRefs, urls...))
	if err != nil {
		return fmt.Errorf("store: marshal asset refs: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_drafts SET asset_refs = ? WHERE id = ?`, string(refs), id)
	if err != nil {
		return fmt.Errorf("store: attach assets: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteDraftStore) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_drafts WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count drafts: %w", err)
	}
	return n, nil
}

type sqliteConversationStore struct {
	db *sql.DB
}

func (s *sqliteConversationStore) Append(ctx context.Context, entries ...*models.ConversationEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = time.Now().UTC()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversations (id, tenant_id, chat_id, role, content, created_at)
			 VALUES (?,?,?,?,?,?)`,
			e.ID, e.TenantID, e.ChatID, e.Role, e.Content, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: insert conversation entry: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
