package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultFastModel    = "claude-haiku-4-5-20251001"
	defaultQualityModel = "claude-sonnet-4-5-20250929"
	defaultMaxTokens    = 4096
)

// AnthropicConfig configures the Claude-backed stage runner.
type AnthropicConfig struct {
	// APIKey is the fallback key used when a call carries no tenant
	// credential.
	APIKey string

	// FastModel and QualityModel override the per-tier model ids.
	FastModel    string
	QualityModel string

	Logger *slog.Logger
}

// AnthropicRunner executes stages against the Anthropic Messages API.
// Safe for concurrent use; a client is built per call so each tenant's
// credential stays isolated.
type AnthropicRunner struct {
	cfg    AnthropicConfig
	logger *slog.Logger
}

// NewAnthropicRunner creates a runner with the given configuration.
func NewAnthropicRunner(cfg AnthropicConfig) *AnthropicRunner {
	if cfg.FastModel == "" {
		cfg.FastModel = defaultFastModel
	}
	if cfg.QualityModel == "" {
		cfg.QualityModel = defaultQualityModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicRunner{cfg: cfg, logger: logger.With("runner", "anthropic")}
}

// Run implements StageRunner.
func (r *AnthropicRunner) Run(ctx context.Context, instruction, input string, opts Options) (string, error) {
	key := strings.TrimSpace(opts.Credential)
	if key == "" {
		key = strings.TrimSpace(r.cfg.APIKey)
	}
	if key == "" {
		return "", ErrNoCredential
	}

	model := r.cfg.QualityModel
	if opts.Tier == TierFast {
		model = r.cfg.FastModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(option.WithAPIKey(key))

	r.logger.Debug("running stage", "model", model, "input_len", len(input))

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: instruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := sb.String()
	r.logger.Debug("stage complete", "model", model, "output_len", len(out))
	return out, nil
}
