// Package flow drives one tenant's conversation: it turns inbound chat
// events into pipeline runs, schedule changes, and follow-up prompts,
// tracking what each chat is currently waiting on.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/inkwellhq/inkwell/internal/intent"
	"github.com/inkwellhq/inkwell/internal/observability"
	"github.com/inkwellhq/inkwell/internal/pipeline"
	"github.com/inkwellhq/inkwell/internal/publisher"
	"github.com/inkwellhq/inkwell/internal/renderer"
	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/internal/scheduler"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// Pipeline is the slice of the executor the engine drives.
type Pipeline interface {
	Load(ctx context.Context, tenantID string) ([]*models.StageDefinition, error)
	RunResearch(ctx context.Context, topic string, cfg pipeline.TenantConfig, format models.Format) (*pipeline.Research, error)
	RunFromResearch(ctx context.Context, researchText, chosenTopic string, format models.Format, remaining []*models.StageDefinition, cfg pipeline.TenantConfig) (*models.ContentDraft, error)
	RunFull(ctx context.Context, topic string, format models.Format, cfg pipeline.TenantConfig) (*models.ContentDraft, error)
}

// Classifier decides what a free-text message is asking for.
type Classifier interface {
	Classify(ctx context.Context, tenant *models.Tenant, message string) (intent.Intent, error)
}

// Limiter admits or refuses pipeline runs per tenant.
type Limiter interface {
	Allow(key string) bool
	Remaining(key string) int
}

// ScheduleRegistry is the running scheduler a session exposes to its
// conversation, so schedule edits take effect without a restart.
type ScheduleRegistry interface {
	Register(sched models.Schedule) error
	Unregister(id string)
}

// Publisher pushes a finished draft to an external platform.
type Publisher interface {
	PublishPhoto(ctx context.Context, acct publisher.Account, imageURL, caption string) (string, error)
	PublishCarousel(ctx context.Context, acct publisher.Account, imageURLs []string, caption string) (string, error)
}

// Deps wires an Engine. Renderer, Assets, Publisher, and Instructor are
// optional; the engine degrades to text-only behavior without them.
type Deps struct {
	Transport  transport.Transport
	Stores     *store.Set
	States     StateStore
	Classifier Classifier
	Pipeline   Pipeline
	Limiter    Limiter
	Registry   ScheduleRegistry
	Renderer   renderer.Renderer
	Assets     Store
	Publisher  Publisher
	Instructor runner.StageRunner
	Logger     *slog.Logger
	Metrics    *observability.Metrics

	// Provider selects which tenant credential backs model calls:
	// "anthropic" (the default) or "openai".
	Provider string
}

// Store uploads rendered images; see the assets package.
type Store interface {
	Upload(ctx context.Context, tenantID string, image []byte) (string, error)
}

// Validate checks required dependencies and applies defaults.
func (d *Deps) Validate() error {
	if d.Transport == nil {
		return fmt.Errorf("flow: transport is required")
	}
	if d.Stores == nil {
		return fmt.Errorf("flow: stores are required")
	}
	if d.Classifier == nil {
		return fmt.Errorf("flow: classifier is required")
	}
	if d.Pipeline == nil {
		return fmt.Errorf("flow: pipeline is required")
	}
	if d.Limiter == nil {
		return fmt.Errorf("flow: limiter is required")
	}
	if d.States == nil {
		d.States = NewMemoryStates()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return nil
}

// Engine handles one tenant's chat. Events must be fed from a single
// goroutine; the session's event loop is that consumer.
type Engine struct {
	tenant *models.Tenant
	deps   Deps
	logger *slog.Logger
}

// New creates an engine for one tenant session.
func New(tenant *models.Tenant, deps Deps) (*Engine, error) {
	if tenant == nil {
		return nil, fmt.Errorf("flow: tenant is required")
	}
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		tenant: tenant,
		deps:   deps,
		logger: deps.Logger.With("component", "flow", "tenant", tenant.ID),
	}, nil
}

// HandleEvent processes one inbound event.
func (e *Engine) HandleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventCommand:
		e.handleCommand(ctx, ev)
	case transport.EventCallback:
		e.handleCallback(ctx, ev)
	case transport.EventText:
		e.handleText(ctx, ev)
	}
}

func (e *Engine) state() State {
	return e.deps.States.Get(e.tenant.ID, e.tenant.ChatID)
}

func (e *Engine) setState(st State) {
	e.deps.States.Put(e.tenant.ID, e.tenant.ChatID, st)
}

func (e *Engine) clearState() {
	e.deps.States.Clear(e.tenant.ID, e.tenant.ChatID)
}

func (e *Engine) say(ctx context.Context, text string) {
	if err := e.deps.Transport.SendText(ctx, text); err != nil {
		e.logger.Warn("send failed", "error", err)
	}
}

func (e *Engine) tenantConfig() pipeline.TenantConfig {
	return pipeline.TenantConfig{
		TenantID:   e.tenant.ID,
		Credential: e.tenant.CredentialFor(e.deps.Provider),
		SearchKey:  e.tenant.SearchKey,
	}
}

// handleText routes free text. A chat mid-wizard feeds the wizard, a
// pending topic menu accepts a typed choice; any other pending state is
// dropped in favor of the new request.
func (e *Engine) handleText(ctx context.Context, ev transport.Event) {
	st := e.state()
	if st.Phase == PhaseOnboarding {
		e.handleOnboardingText(ctx, st, ev.Text)
		return
	}
	if st.Phase == PhaseAwaitingTopicChoice && e.topicFromReply(ctx, st, ev.Text) {
		return
	}
	if st.Phase != PhaseIdle {
		e.clearState()
	}

	result, err := e.deps.Classifier.Classify(ctx, e.tenant, ev.Text)
	if err != nil {
		e.replyClassifyError(ctx, err)
		return
	}

	switch in := result.(type) {
	case intent.PlainReply:
		e.say(ctx, in.Text)
		e.recordConversation(ctx, ev.Text, in.Text)
	case intent.ContentRequest:
		e.setState(State{Phase: PhaseAwaitingFormat, Topic: in.Topic})
		e.sendFormatMenu(ctx, in.Topic, false)
	case intent.ResearchRequest:
		e.startResearch(ctx, "", "")
	case intent.ContextRequest:
		e.setState(State{
			Phase:         PhaseAwaitingFormat,
			Topic:         in.Topic,
			ContextText:   in.Text,
			AllowVerbatim: true,
		})
		e.sendFormatMenu(ctx, in.Topic, true)
	case intent.LiteralTextRequest:
		e.saveVerbatim(ctx, "", in.Text)
	case intent.ScheduleRequest:
		e.createSchedule(ctx, in)
	case intent.StageRequest:
		e.startOnboarding(ctx)
	default:
		e.logger.Warn("unhandled intent", "intent", fmt.Sprintf("%T", result))
	}
}

func (e *Engine) replyClassifyError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, runner.ErrNoCredential):
		e.say(ctx, "No language model credential is configured for this workspace yet. Ask your operator to add one.")
	default:
		e.logger.Error("classification failed", "error", err)
		e.say(ctx, "I couldn't process that right now. Please try again in a moment.")
	}
}

func (e *Engine) recordConversation(ctx context.Context, userText, replyText string) {
	err := e.deps.Stores.Conversations.Append(ctx,
		&models.ConversationEntry{TenantID: e.tenant.ID, ChatID: e.tenant.ChatID, Role: "user", Content: userText},
		&models.ConversationEntry{TenantID: e.tenant.ID, ChatID: e.tenant.ChatID, Role: "assistant", Content: replyText},
	)
	if err != nil {
		e.logger.Warn("conversation append failed", "error", err)
	}
}

// sendFormatMenu shows the format choices for a pending topic. Context
// mode additionally offers publishing the user's text untouched.
func (e *Engine) sendFormatMenu(ctx context.Context, topic string, allowVerbatim bool) {
	rows := make([][]transport.Button, 0, len(models.Formats())+1)
	for _, f := range models.Formats() {
		rows = append(rows, []transport.Button{{Label: formatLabel(f), Data: "fmt:" + string(f)}})
	}
	if allowVerbatim {
		rows = append(rows, []transport.Button{{Label: "Use my text as-is", Data: "fmt:" + string(models.FormatVerbatim)}})
	}
	prompt := "What format should this be?"
	if topic != "" {
		prompt = fmt.Sprintf("%q it is. What format should this be?", topic)
	}
	if err := e.deps.Transport.SendMenu(ctx, prompt, rows); err != nil {
		e.logger.Warn("format menu failed", "error", err)
	}
}

func formatLabel(f models.Format) string {
	switch f {
	case models.FormatSinglePost:
		return "Single post"
	case models.FormatCarousel:
		return "Carousel"
	case models.FormatTweet:
		return "Tweet"
	case models.FormatThread:
		return "Thread"
	case models.FormatReelScript:
		return "Reel script"
	default:
		return string(f)
	}
}

// handleCallback routes button presses against the pending state. A
// press with no pending state is stale (old menu) and is ignored.
func (e *Engine) handleCallback(ctx context.Context, ev transport.Event) {
	st := e.state()
	kind, value, _ := strings.Cut(ev.Data, ":")

	switch {
	case kind == "fmt" && st.Phase == PhaseAwaitingFormat:
		e.onFormatChosen(ctx, st, models.Format(value))
	case kind == "opt" && (st.Phase == PhaseAwaitingResearchChoice || st.Phase == PhaseAwaitingTopicChoice):
		e.onTopicChosen(ctx, st, value)
	case kind == "img" && st.Phase == PhaseAwaitingImageConfirm:
		e.onImageConfirm(ctx, st, value == "yes")
	case kind == "pub" && st.Phase == PhaseAwaitingPublishConfirm:
		e.onPublishConfirm(ctx, st, value == "yes")
	case kind == "pos" && st.Phase == PhaseOnboarding && st.Step == StepPosition:
		e.onPositionChosen(ctx, st, value)
	default:
		e.logger.Debug("stale callback ignored", "data", ev.Data, "phase", st.Phase)
	}
}

func (e *Engine) onFormatChosen(ctx context.Context, st State, format models.Format) {
	if format == models.FormatVerbatim {
		if !st.AllowVerbatim {
			e.logger.Debug("verbatim chosen outside context mode")
			return
		}
		e.clearState()
		e.saveVerbatim(ctx, st.Topic, st.ContextText)
		return
	}

	if !e.allowRun(ctx) {
		return
	}
	e.say(ctx, "Working on it...")

	var (
		draft *models.ContentDraft
		err   error
	)
	switch {
	case st.Research != nil:
		draft, err = e.deps.Pipeline.RunFromResearch(ctx, st.Research.Text, st.Topic, format, st.Research.Remaining, e.tenantConfig())
	case st.ContextText != "":
		var stages []*models.StageDefinition
		stages, err = e.deps.Pipeline.Load(ctx, e.tenant.ID)
		if err == nil {
			// The user's material stands in for research, so the
			// researcher stage is skipped unless it is the only one.
			if len(stages) > 1 {
				stages = stages[1:]
			}
			draft, err = e.deps.Pipeline.RunFromResearch(ctx, st.ContextText, st.Topic, format, stages, e.tenantConfig())
		}
	default:
		draft, err = e.deps.Pipeline.RunFull(ctx, st.Topic, format, e.tenantConfig())
	}
	if err != nil {
		e.clearState()
		e.replyPipelineError(ctx, err)
		return
	}
	e.finishDraft(ctx, draft)
}

func (e *Engine) onTopicChosen(ctx context.Context, st State, value string) {
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 0 || idx >= len(st.Options) {
		e.logger.Debug("bad topic choice", "value", value)
		return
	}
	topic := st.Options[idx]

	if st.Phase == PhaseAwaitingTopicChoice {
		e.generateForTopic(ctx, st, topic)
		return
	}
	e.setState(State{Phase: PhaseAwaitingFormat, Topic: topic, Research: st.Research})
	e.sendFormatMenu(ctx, topic, false)
}

// topicFromReply resolves a pending topic menu from a typed message: the
// option's number, or any text long enough to be a topic of its own.
// Anything shorter falls through to normal classification.
func (e *Engine) topicFromReply(ctx context.Context, st State, reply string) bool {
	reply = strings.TrimSpace(reply)
	if n, err := strconv.Atoi(reply); err == nil {
		if n < 1 || n > len(st.Options) {
			e.say(ctx, fmt.Sprintf("Pick a number between 1 and %d, or just type a topic.", len(st.Options)))
			return true
		}
		e.generateForTopic(ctx, st, st.Options[n-1])
		return true
	}
	if utf8.RuneCountInString(reply) > 5 {
		e.generateForTopic(ctx, st, reply)
		return true
	}
	return false
}

// generateForTopic runs the rest of the pipeline for a schedule firing's
// chosen topic. The format was fixed when the schedule was created.
func (e *Engine) generateForTopic(ctx context.Context, st State, topic string) {
	next := State{Phase: PhaseAwaitingFormat, Topic: topic, Research: st.Research}
	e.setState(next)
	e.onFormatChosen(ctx, next, st.Format)
}

// allowRun enforces the per-tenant run quota and tells the user when
// they are over it.
func (e *Engine) allowRun(ctx context.Context) bool {
	if e.deps.Limiter.Allow(e.tenant.ID) {
		return true
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.QuotaRefusals.WithLabelValues(e.tenant.ID).Inc()
	}
	e.clearState()
	e.say(ctx, "You've hit the hourly content limit. Give it a little while and try again.")
	return false
}

func (e *Engine) replyPipelineError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyPipeline):
		e.say(ctx, "Your pipeline has no stages yet. Use /new_stage to add the first one.")
	case errors.Is(err, runner.ErrNoCredential):
		e.say(ctx, "No language model credential is configured for this workspace yet. Ask your operator to add one.")
	default:
		e.logger.Error("pipeline run failed", "error", err)
		e.say(ctx, "Content generation failed partway through. Nothing was saved; please try again.")
	}
}

// startResearch runs the researcher and presents topic options.
// topicHint seeds the researcher; format is non-empty for schedule
// firings, which skip the format menu later. A research failure is
// replied to the chat and returned to the caller.
func (e *Engine) startResearch(ctx context.Context, topicHint string, format models.Format) error {
	e.say(ctx, "Let me look for some angles...")

	research, err := e.deps.Pipeline.RunResearch(ctx, topicHint, e.tenantConfig(), format)
	if err != nil {
		e.replyPipelineError(ctx, err)
		return err
	}
	options := TopicOptions(research.Text)
	if len(options) == 0 {
		e.logger.Warn("no topic options parsed from research")
		e.say(ctx, "Research came back but I couldn't pull clear topic ideas out of it. Here's the raw result:\n\n"+research.Text)
		return nil
	}

	phase := PhaseAwaitingResearchChoice
	if format != "" {
		phase = PhaseAwaitingTopicChoice
	}
	e.setState(State{Phase: phase, Research: research, Options: options, Format: format})

	rows := make([][]transport.Button, 0, len(options))
	for i, opt := range options {
		rows = append(rows, []transport.Button{{Label: truncate(opt, 60), Data: "opt:" + strconv.Itoa(i)}})
	}
	if err := e.deps.Transport.SendMenu(ctx, "Which one should I run with?", rows); err != nil {
		e.logger.Warn("topic menu failed", "error", err)
	}
	return nil
}

// HandleScheduleFire is the entry point the scheduler calls. It runs
// research on the schedule's topics and hands the chat the topic choice;
// generation happens only after the user picks. A failed research run is
// returned so the firing is recorded as an error, not a success.
func (e *Engine) HandleScheduleFire(ctx context.Context, sched models.Schedule) error {
	e.say(ctx, fmt.Sprintf("Your schedule %q just fired.", sched.Name))
	return e.startResearch(ctx, strings.Join(sched.Topics, ", "), sched.Format)
}

// saveVerbatim persists exactly what the user supplied, bypassing the
// pipeline and the quota.
func (e *Engine) saveVerbatim(ctx context.Context, topic, text string) {
	if strings.TrimSpace(text) == "" {
		e.say(ctx, "I didn't catch any text to save.")
		return
	}
	draft := &models.ContentDraft{
		TenantID: e.tenant.ID,
		Topic:    topic,
		Format:   models.FormatVerbatim,
		Final:    text,
		Status:   models.DraftCompleted,
	}
	if err := e.deps.Stores.Drafts.Create(ctx, draft); err != nil {
		e.logger.Error("verbatim draft save failed", "error", err)
		e.say(ctx, "Saving your text failed. Please try again.")
		return
	}
	e.say(ctx, "Saved word for word:\n\n"+text)
	e.offerImage(ctx, draft.ID)
}

// finishDraft previews the result and offers image generation when the
// format benefits from one and rendering is configured.
func (e *Engine) finishDraft(ctx context.Context, draft *models.ContentDraft) {
	e.say(ctx, cleanPreview(draft.Final))

	if !draft.Format.ImageCapable() || !e.offerImage(ctx, draft.ID) {
		e.clearState()
	}
}

// offerImage prompts for a rendered visual. Returns false when rendering
// is not configured for this workspace.
func (e *Engine) offerImage(ctx context.Context, draftID string) bool {
	if e.deps.Renderer == nil || e.deps.Assets == nil || e.tenant.RenderKey == "" {
		return false
	}
	e.setState(State{Phase: PhaseAwaitingImageConfirm, DraftID: draftID})
	rows := [][]transport.Button{{
		{Label: "Generate image", Data: "img:yes"},
		{Label: "Skip", Data: "img:no"},
	}}
	if err := e.deps.Transport.SendMenu(ctx, "Want a visual to go with it?", rows); err != nil {
		e.logger.Warn("image menu failed", "error", err)
	}
	return true
}

func (e *Engine) onImageConfirm(ctx context.Context, st State, yes bool) {
	if !yes {
		e.clearState()
		e.say(ctx, "Done. The draft is saved.")
		return
	}

	draft, err := e.deps.Stores.Drafts.Get(ctx, st.DraftID)
	if err != nil {
		e.logger.Error("draft lookup failed", "draft", st.DraftID, "error", err)
		e.clearState()
		return
	}

	e.say(ctx, "Rendering...")
	images, err := e.deps.Renderer.Render(ctx, e.tenant.RenderKey, renderer.Request{
		Texts:    imageTexts(draft),
		Format:   draft.Format,
		Branding: e.tenant.Branding,
	})
	if err != nil {
		e.logger.Error("render failed", "error", err)
		e.clearState()
		e.say(ctx, "Image generation failed, but your draft is saved.")
		return
	}

	var urls []string
	for _, img := range images {
		url, err := e.deps.Assets.Upload(ctx, e.tenant.ID, img)
		if err != nil {
			e.logger.Warn("asset upload failed", "error", err)
			continue
		}
		urls = append(urls, url)
		if err := e.deps.Transport.SendPhoto(ctx, "", img); err != nil {
			e.logger.Warn("photo send failed", "error", err)
		}
	}
	attached := false
	if len(urls) > 0 {
		if err := e.deps.Stores.Drafts.AttachAssets(ctx, draft.ID, urls); err != nil {
			e.logger.Error("attach assets failed", "draft", draft.ID, "error", err)
		} else {
			attached = true
		}
	}

	// Publishing needs the references on the row, so an attach failure
	// ends the flow here.
	if attached && e.canPublish() {
		e.setState(State{Phase: PhaseAwaitingPublishConfirm, DraftID: draft.ID})
		rows := [][]transport.Button{{
			{Label: "Publish to Instagram", Data: "pub:yes"},
			{Label: "Not now", Data: "pub:no"},
		}}
		if err := e.deps.Transport.SendMenu(ctx, "Publish this now?", rows); err != nil {
			e.logger.Warn("publish menu failed", "error", err)
		}
		return
	}
	e.clearState()
}

func (e *Engine) canPublish() bool {
	return e.deps.Publisher != nil && e.tenant.InstagramToken != "" && e.tenant.InstagramUser != ""
}

func (e *Engine) onPublishConfirm(ctx context.Context, st State, yes bool) {
	e.clearState()
	if !yes {
		e.say(ctx, "Okay, holding off. The draft and images are saved.")
		return
	}

	draft, err := e.deps.Stores.Drafts.Get(ctx, st.DraftID)
	if err != nil {
		e.logger.Error("draft lookup failed", "draft", st.DraftID, "error", err)
		return
	}
	if len(draft.AssetRefs) == 0 {
		e.logger.Warn("publish requested with no attached assets", "draft", draft.ID)
		e.say(ctx, "This draft has no images attached, so there's nothing to publish.")
		return
	}
	acct := publisher.Account{AccessToken: e.tenant.InstagramToken, UserID: e.tenant.InstagramUser}
	caption := truncate(draft.Final, 2200)

	var mediaID string
	if len(draft.AssetRefs) > 1 {
		mediaID, err = e.deps.Publisher.PublishCarousel(ctx, acct, draft.AssetRefs, caption)
	} else {
		mediaID, err = e.deps.Publisher.PublishPhoto(ctx, acct, draft.AssetRefs[0], caption)
	}
	if err != nil {
		e.logger.Error("publish failed", "draft", draft.ID, "error", err)
		switch {
		case errors.Is(err, publisher.ErrProcessingTimeout):
			e.say(ctx, "Instagram is still processing the media. It may appear shortly; check your account before retrying.")
		case errors.Is(err, publisher.ErrProcessingFailed):
			e.say(ctx, "Instagram rejected the media. The draft is saved; you can publish it manually.")
		default:
			e.say(ctx, "Publishing failed. The draft and images are saved.")
		}
		return
	}
	e.say(ctx, fmt.Sprintf("Published! Media id %s.", mediaID))
}

// createSchedule validates before persisting; an invalid expression
// leaves the store untouched.
func (e *Engine) createSchedule(ctx context.Context, req intent.ScheduleRequest) {
	if err := scheduler.Validate(req.CronExpr, ""); err != nil {
		e.say(ctx, fmt.Sprintf("That schedule doesn't parse (%v). Nothing was saved.", err))
		return
	}
	sched := &models.Schedule{
		TenantID: e.tenant.ID,
		Name:     req.Name,
		CronExpr: req.CronExpr,
		Topics:   req.Topics,
		Format:   req.Format,
		Active:   true,
	}
	if err := e.deps.Stores.Schedules.Create(ctx, sched); err != nil {
		e.logger.Error("schedule create failed", "error", err)
		e.say(ctx, "Saving the schedule failed. Please try again.")
		return
	}
	if e.deps.Registry != nil {
		if err := e.deps.Registry.Register(*sched); err != nil {
			e.logger.Error("schedule register failed", "schedule", sched.ID, "error", err)
		}
	}
	e.say(ctx, fmt.Sprintf("Schedule %q is on: %s, topics %s, format %s.",
		sched.Name, sched.CronExpr, strings.Join(sched.Topics, ", "), sched.Format))
}

// imageTexts picks what gets rendered: one image per carousel slide, one
// for everything else.
func imageTexts(draft *models.ContentDraft) []string {
	if draft.Format != models.FormatCarousel {
		return []string{draft.Final}
	}
	slides := splitSlides(draft.Final)
	if len(slides) == 0 {
		return []string{draft.Final}
	}
	return slides
}

// splitSlides breaks carousel copy on slide separators.
func splitSlides(text string) []string {
	var slides []string
	for _, part := range strings.Split(text, "\n---") {
		if s := strings.TrimSpace(strings.TrimPrefix(part, "-")); s != "" {
			slides = append(slides, s)
		}
	}
	if len(slides) > 10 {
		slides = slides[:10]
	}
	return slides
}

// cleanPreview strips code fences and bold markers the model sometimes
// wraps drafts in, so the chat preview reads like the final post.
func cleanPreview(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		lines = append(lines, line)
	}
	out := strings.Join(lines, "\n")
	out = strings.ReplaceAll(out, "**", "")
	return strings.TrimSpace(out)
}

// truncate caps s at max bytes, cutting on a rune boundary so the
// result stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
