// Package models defines the shared entities of the Inkwell content
// automation service: tenants, pipeline stages, schedules, drafts, and
// the per-chat dialog state that ties them together.
package models

import (
	"time"
)

// Format identifies the target shape of a piece of generated content.
type Format string

const (
	FormatSinglePost Format = "single_post"
	FormatCarousel   Format = "carousel"
	FormatTweet      Format = "tweet"
	FormatThread     Format = "thread"
	FormatReelScript Format = "reel_script"

	// FormatVerbatim persists user-supplied text as-is, skipping the
	// generation pipeline entirely.
	FormatVerbatim Format = "verbatim"
)

// ImageCapable reports whether drafts in this format can have images
// rendered for them.
func (f Format) ImageCapable() bool {
	return f == FormatSinglePost || f == FormatCarousel
}

// Formats lists the formats offered to users when choosing how a topic
// should be produced. FormatVerbatim is only offered when the user
// supplied the text themselves.
func Formats() []Format {
	return []Format{
		FormatSinglePost,
		FormatCarousel,
		FormatTweet,
		FormatThread,
		FormatReelScript,
	}
}

// Tenant is one isolated customer account: its transport credential,
// chat binding, encrypted provider keys, and branding configuration.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	// BotToken is the Telegram bot token this tenant's session runs on.
	BotToken string `json:"bot_token"`

	// ChatID is the only chat this tenant's session accepts events from.
	ChatID string `json:"chat_id"`

	// Provider keys are stored encrypted (see internal/crypto) and
	// decrypted on load.
	AnthropicKey   string `json:"anthropic_key,omitempty"`
	OpenAIKey      string `json:"openai_key,omitempty"`
	SearchKey      string `json:"search_key,omitempty"`
	RenderKey      string `json:"render_key,omitempty"`
	InstagramToken string `json:"instagram_token,omitempty"`
	InstagramUser  string `json:"instagram_user,omitempty"`

	// Branding is a free-form blob consumed by the renderer.
	Branding map[string]string `json:"branding,omitempty"`

	// Persona fields customize the assistant's system prompt.
	OwnerName      string `json:"owner_name,omitempty"`
	Niche          string `json:"niche,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Tone           string `json:"tone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialFor returns the tenant's own key for the given LLM provider,
// or empty when none is stored. Anything but "openai" means Anthropic.
func (t *Tenant) CredentialFor(provider string) string {
	if provider == "openai" {
		return t.OpenAIKey
	}
	return t.AnthropicKey
}

// StageDefinition is one ordered step of a tenant's content pipeline.
type StageDefinition struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`

	// Instruction is the system prompt handed to the stage runner.
	Instruction string `json:"instruction"`

	// Position defines execution order among active stages. Nil means the
	// stage is parked outside the pipeline.
	Position *int `json:"position,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Schedule is a recurring trigger that runs the research stage and hands
// the result back to the owning tenant's chat for topic selection.
type Schedule struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	CronExpr string   `json:"cron_expr"`
	Timezone string   `json:"timezone"`
	Topics   []string `json:"topics,omitempty"`
	Format   Format   `json:"format"`
	Active   bool     `json:"active"`

	LastRun   time.Time `json:"last_run,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftStatus tracks the lifecycle of a ContentDraft.
type DraftStatus string

const (
	DraftPending   DraftStatus = "pending"
	DraftCompleted DraftStatus = "completed"
)

// ContentDraft is the persisted artifact of one pipeline run.
type ContentDraft struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Topic    string `json:"topic"`
	Format   Format `json:"format"`

	// Intermediate holds the first non-final stage's raw output, Final the
	// last stage's output.
	Intermediate string `json:"intermediate,omitempty"`
	Final        string `json:"final"`

	// AssetRefs are URLs of rendered images attached after creation.
	AssetRefs []string `json:"asset_refs,omitempty"`

	Status    DraftStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConversationEntry is one turn of chat history kept for plain replies.
type ConversationEntry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
