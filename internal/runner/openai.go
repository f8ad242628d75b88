package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the GPT-backed stage runner, used by tenants
// that provision an OpenAI key instead of an Anthropic one.
type OpenAIConfig struct {
	APIKey       string
	FastModel    string
	QualityModel string
	Logger       *slog.Logger
}

// OpenAIRunner executes stages against the OpenAI chat completion API.
type OpenAIRunner struct {
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIRunner creates a runner with the given configuration.
func NewOpenAIRunner(cfg OpenAIConfig) *OpenAIRunner {
	if cfg.FastModel == "" {
		cfg.FastModel = openai.GPT4oMini
	}
	if cfg.QualityModel == "" {
		cfg.QualityModel = openai.GPT4o
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIRunner{cfg: cfg, logger: logger.With("runner", "openai")}
}

// Run implements StageRunner.
func (r *OpenAIRunner) Run(ctx context.Context, instruction, input string, opts Options) (string, error) {
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

	client := openai.NewClient(key)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	out := resp.Choices[0].Message.Content
	r.logger.Debug("stage complete", "model", model, "output_len", len(out))
	return out, nil
}
