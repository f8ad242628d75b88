// Package pipeline executes a tenant's ordered content-generation stages.
// The first stage researches a topic; each following stage consumes the
// previous stage's raw output until the last stage produces the final
// artifact, which is persisted as a ContentDraft.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/internal/observability"
	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// ErrEmptyPipeline is returned when a tenant has no active stages.
var ErrEmptyPipeline = errors.New("pipeline: no active stages")

// TenantConfig carries per-tenant credentials into a pipeline run.
type TenantConfig struct {
	TenantID   string
	Credential string
	SearchKey  string
}

// Research is the result of running only the first stage. Nothing is
// persisted at this point; the caller may present options before
// committing to the rest of the pipeline.
type Research struct {
	Text      string
	Remaining []*models.StageDefinition
}

// Executor runs a tenant's stage pipeline.
type Executor struct {
	stages  store.StageStore
	drafts  store.DraftStore
	runner  runner.StageRunner
	search  *WebSearch
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithWebSearch enables web-search augmentation of the research stage.
func WithWebSearch(search *WebSearch) Option {
	return func(e *Executor) { e.search = search }
}

// WithLogger configures the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics configures metrics collection.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a pipeline executor.
func NewExecutor(stages store.StageStore, drafts store.DraftStore, stageRunner runner.StageRunner, opts ...Option) *Executor {
	e := &Executor{
		stages: stages,
		drafts: drafts,
		runner: stageRunner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches the tenant's active stages sorted by position ascending.
// It fails with ErrEmptyPipeline when no stages are active.
func (e *Executor) Load(ctx context.Context, tenantID string) ([]*models.StageDefinition, error) {
	stages, err := e.stages.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load stages: %w", err)
	}
	if len(stages) == 0 {
		return nil, ErrEmptyPipeline
	}
	return stages, nil
}

// RunResearch runs only the first stage for a topic and returns its text
// plus the remaining stages. The research input is augmented with current
// web results when a search key is configured; search failures degrade to
// topic-only research. Nothing is persisted.
func (e *Executor) RunResearch(ctx context.Context, topic string, cfg TenantConfig, format models.Format) (*Research, error) {
	stages, err := e.Load(ctx, cfg.TenantID)
	if err != nil {
		return nil, err
	}
	researcher, remaining := stages[0], stages[1:]

	input := "Topic: " + topic
	if e.search != nil && cfg.SearchKey != "" {
		results, err := e.search.Search(ctx, topic, cfg.SearchKey)
		if err != nil {
			e.logger.Warn("web search failed, researching without it",
				"tenant_id", cfg.TenantID, "error", err)
		} else if results != "" {
			input += "\n\nCurrent web results:\n" + results
		}
	}
	input += formatHint(format)

	e.logger.Info("running research stage",
		"tenant_id", cfg.TenantID, "stage", researcher.Name, "topic", topic)

	start := time.Now()
	text, err := e.runner.Run(ctx, researcher.Instruction, input, runner.Options{
		Credential: cfg.Credential,
		Tier:       runner.TierQuality,
	})
	e.observeStage(cfg.TenantID, start)
	if err != nil {
		return nil, fmt.Errorf("pipeline: research stage %q: %w", researcher.Name, err)
	}

	return &Research{Text: text, Remaining: remaining}, nil
}

// RunFromResearch feeds the chosen topic plus the research text through
// every remaining stage in order and persists exactly one completed
// ContentDraft. The format hint travels with every stage's input. A
// failure at any stage aborts the run with no draft persisted.
func (e *Executor) RunFromResearch(ctx context.Context, researchText, chosenTopic string, format models.Format, remaining []*models.StageDefinition, cfg TenantConfig) (*models.ContentDraft, error) {
	if len(remaining) == 0 {
		return nil, fmt.Errorf("pipeline: no stages after research: %w", ErrEmptyPipeline)
	}

	input := fmt.Sprintf("Chosen topic: %s\n\nResearch context:\n%s%s",
		chosenTopic, researchText, formatHint(format))

	var intermediate, output string
	for i, stage := range remaining {
		e.logger.Info("running stage",
			"tenant_id", cfg.TenantID, "stage", stage.Name, "position", i+1, "of", len(remaining))

		start := time.Now()
		out, err := e.runner.Run(ctx, stage.Instruction, input, runner.Options{
			Credential: cfg.Credential,
			Tier:       runner.TierQuality,
		})
		e.observeStage(cfg.TenantID, start)
		if err != nil {
			if e.metrics != nil {
				e.metrics.PipelineRuns.WithLabelValues(cfg.TenantID, "error").Inc()
			}
			return nil, fmt.Errorf("pipeline: stage %q: %w", stage.Name, err)
		}
		if i == 0 && len(remaining) > 1 {
			intermediate = out
		}
		output = out
		input = out + formatHint(format)
	}

	draft := &models.ContentDraft{
		TenantID:     cfg.TenantID,
		Topic:        chosenTopic,
		Format:       format,
		Intermediate: intermediate,
		Final:        output,
		Status:       models.DraftCompleted,
	}
	if err := e.drafts.Create(ctx, draft); err != nil {
		return nil, fmt.Errorf("pipeline: save draft: %w", err)
	}
	if e.metrics != nil {
		e.metrics.PipelineRuns.WithLabelValues(cfg.TenantID, "ok").Inc()
	}

	e.logger.Info("pipeline complete",
		"tenant_id", cfg.TenantID, "draft_id", draft.ID, "format", format)
	return draft, nil
}

// RunFull composes RunResearch and RunFromResearch for one-shot callers.
// When the research stage returns structured ideas, the first idea's title
// becomes the working topic; otherwise the caller's topic is kept.
func (e *Executor) RunFull(ctx context.Context, topic string, format models.Format, cfg TenantConfig) (*models.ContentDraft, error) {
	research, err := e.RunResearch(ctx, topic, cfg, format)
	if err != nil {
		return nil, err
	}

	chosen := topic
	if data, err := Extract(research.Text); err == nil {
		if t := firstIdeaTitle(data); t != "" {
			chosen = t
		}
	}

	return e.RunFromResearch(ctx, research.Text, chosen, format, research.Remaining, cfg)
}

func (e *Executor) observeStage(tenantID string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.StageLatency.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
}

// firstIdeaTitle digs the first idea title out of extracted research data.
func firstIdeaTitle(data map[string]any) string {
	for _, key := range []string{"ideas", "suggestions", "topics"} {
		items, ok := data[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		first, ok := items[0].(map[string]any)
		if !ok {
			continue
		}
		for _, tk := range []string{"title", "headline", "hook"} {
			if t, ok := first[tk].(string); ok && strings.TrimSpace(t) != "" {
				return strings.TrimSpace(t)
			}
		}
	}
	return ""
}

func formatHint(format models.Format) string {
	return "\n\nTarget format: " + string(format)
}
