package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// Classifier runs one fast-tier model call per message and parses the
// resulting action marker, if any.
type Classifier struct {
	run      runner.StageRunner
	provider string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithProvider selects which tenant credential the classifier passes to
// the runner: "anthropic" (the default) or "openai".
func WithProvider(provider string) ClassifierOption {
	return func(c *Classifier) { c.provider = provider }
}

func NewClassifier(run runner.StageRunner, opts ...ClassifierOption) *Classifier {
	c := &Classifier{run: run}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the intent of a free-text message. Transport commands
// never reach this path; only conversational text does. Any runner error
// is returned unwrapped so callers can distinguish missing credentials
// from upstream outages.
func (c *Classifier) Classify(ctx context.Context, tenant *models.Tenant, message string) (Intent, error) {
	resp, err := c.run.Run(ctx, systemPrompt(tenant), message, runner.Options{
		Credential: tenant.CredentialFor(c.provider),
		Tier:       runner.TierFast,
		MaxTokens:  1024,
	})
	if err != nil {
		return nil, err
	}
	return Parse(resp), nil
}

func systemPrompt(t *models.Tenant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a content assistant for %s", displayName(t))
	if t.Niche != "" {
		fmt.Fprintf(&b, ", who works in %s", t.Niche)
	}
	b.WriteString(".\n")
	if t.Specialization != "" {
		fmt.Fprintf(&b, "Their specialization: %s.\n", t.Specialization)
	}
	if t.Tone != "" {
		fmt.Fprintf(&b, "Preferred tone: %s.\n", t.Tone)
	}
	b.WriteString(`
Reply conversationally. When the message is a request to act, end your
reply with exactly one action marker on its own line:

[ACTION:CONTENT] topic: <topic> | format: <format>
  when the user names a concrete topic to create content about.
[ACTION:RESEARCH]
  when the user wants content but names no topic, or asks for ideas.
[ACTION:SCHEDULE] name: <name> | cron: "<cron expression>" | topics: "<comma separated>" | format: <format>
  when the user asks for recurring publication.
[ACTION:NEW_STAGE]
  when the user asks to add a new step to their content pipeline.
[ACTION:VERBATIM] text: <exact text>
  when the user supplies finished text to publish word for word.
[ACTION:CONTEXT] topic: <topic> | text: <material>
  when the user supplies source material to build content from.

Formats: `)
	names := make([]string, 0, len(models.Formats()))
	for _, f := range models.Formats() {
		names = append(names, string(f))
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\nIf no action applies, reply with no marker at all.")
	return b.String()
}

func displayName(t *models.Tenant) string {
	if t.OwnerName != "" {
		return t.OwnerName
	}
	return t.Name
}
