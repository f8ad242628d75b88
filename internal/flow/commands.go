package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/pkg/models"
)

const helpText = `Here's what I can do:

/content <topic> - create content about a topic (or just tell me in plain words)
/content - no topic in mind? I'll research some ideas
/schedules - list your recurring schedules
/pause <name> - pause a schedule
/resume <name> - resume a paused schedule
/trigger <name> - fire a schedule right now
/pipeline - show your content pipeline stages
/new_stage - add a pipeline stage
/branding <key> <value> - set a branding hint for images
/status - workspace overview
/cancel - drop whatever we were in the middle of

You can also just talk to me. Paste finished text and I'll save it as-is,
or share source material and I'll build content from it.`

func (e *Engine) handleCommand(ctx context.Context, ev transport.Event) {
	// Commands always preempt a pending wizard or menu.
	if ev.Command != "cancel" && e.state().Phase == PhaseOnboarding {
		e.clearState()
	}

	switch ev.Command {
	case "start", "help":
		e.say(ctx, helpText)
	case "content":
		if ev.Args == "" {
			e.startResearch(ctx, "", "")
			return
		}
		e.setState(State{Phase: PhaseAwaitingFormat, Topic: ev.Args})
		e.sendFormatMenu(ctx, ev.Args, false)
	case "schedules":
		e.cmdSchedules(ctx)
	case "pause":
		e.cmdSetScheduleActive(ctx, ev.Args, false)
	case "resume":
		e.cmdSetScheduleActive(ctx, ev.Args, true)
	case "trigger":
		e.cmdTrigger(ctx, ev.Args)
	case "pipeline":
		e.cmdPipeline(ctx)
	case "new_stage":
		e.startOnboarding(ctx)
	case "branding":
		e.cmdBranding(ctx, ev.Args)
	case "status":
		e.cmdStatus(ctx)
	case "cancel":
		e.clearState()
		e.say(ctx, "Dropped. What's next?")
	default:
		e.say(ctx, "I don't know that command. Try /help.")
	}
}

func (e *Engine) cmdSchedules(ctx context.Context) {
	schedules, err := e.deps.Stores.Schedules.List(ctx, e.tenant.ID)
	if err != nil {
		e.logger.Error("schedule list failed", "error", err)
		e.say(ctx, "Couldn't load your schedules right now.")
		return
	}
	if len(schedules) == 0 {
		e.say(ctx, "No schedules yet. Tell me something like \"post three fitness tips every Monday at 9\".")
		return
	}
	var b strings.Builder
	b.WriteString("Your schedules:\n")
	for _, s := range schedules {
		state := "active"
		if !s.Active {
			state = "paused"
		}
		fmt.Fprintf(&b, "\n%s - %s (%s, %s)", s.Name, s.CronExpr, s.Format, state)
		if !s.LastRun.IsZero() {
			fmt.Fprintf(&b, ", last fired %s", s.LastRun.Format(time.RFC822))
		}
	}
	e.say(ctx, b.String())
}

func (e *Engine) findSchedule(ctx context.Context, nameOrID string) (*models.Schedule, error) {
	schedules, err := e.deps.Stores.Schedules.List(ctx, e.tenant.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		if s.ID == nameOrID || strings.EqualFold(s.Name, nameOrID) {
			return s, nil
		}
	}
	return nil, nil
}

func (e *Engine) cmdSetScheduleActive(ctx context.Context, name string, active bool) {
	verb := "pause"
	if active {
		verb = "resume"
	}
	if name == "" {
		e.say(ctx, fmt.Sprintf("Which schedule? /%s <name>", verb))
		return
	}
	sched, err := e.findSchedule(ctx, name)
	if err != nil {
		e.logger.Error("schedule lookup failed", "error", err)
		e.say(ctx, "Couldn't load your schedules right now.")
		return
	}
	if sched == nil {
		e.say(ctx, fmt.Sprintf("No schedule called %q. /schedules lists them.", name))
		return
	}
	if err := e.deps.Stores.Schedules.SetActive(ctx, sched.ID, active); err != nil {
		e.logger.Error("schedule update failed", "schedule", sched.ID, "error", err)
		e.say(ctx, "Updating the schedule failed. Please try again.")
		return
	}
	if e.deps.Registry != nil {
		if active {
			sched.Active = true
			if err := e.deps.Registry.Register(*sched); err != nil {
				e.logger.Error("schedule register failed", "schedule", sched.ID, "error", err)
			}
		} else {
			e.deps.Registry.Unregister(sched.ID)
		}
	}
	if active {
		e.say(ctx, fmt.Sprintf("%q is running again.", sched.Name))
	} else {
		e.say(ctx, fmt.Sprintf("%q is paused. /resume %s brings it back.", sched.Name, sched.Name))
	}
}

func (e *Engine) cmdTrigger(ctx context.Context, name string) {
	if name == "" {
		e.say(ctx, "Which schedule? /trigger <name>")
		return
	}
	sched, err := e.findSchedule(ctx, name)
	if err != nil {
		e.logger.Error("schedule lookup failed", "error", err)
		e.say(ctx, "Couldn't load your schedules right now.")
		return
	}
	if sched == nil {
		e.say(ctx, fmt.Sprintf("No schedule called %q. /schedules lists them.", name))
		return
	}
	if err := e.HandleScheduleFire(ctx, *sched); err != nil {
		e.logger.Error("manual trigger failed", "schedule", sched.ID, "error", err)
	}
}

func (e *Engine) cmdPipeline(ctx context.Context) {
	stages, err := e.deps.Stores.Stages.ListActive(ctx, e.tenant.ID)
	if err != nil {
		e.logger.Error("stage list failed", "error", err)
		e.say(ctx, "Couldn't load your pipeline right now.")
		return
	}
	if len(stages) == 0 {
		e.say(ctx, "Your pipeline is empty. /new_stage adds the first stage.")
		return
	}
	var b strings.Builder
	b.WriteString("Your pipeline:\n")
	for _, s := range stages {
		name := s.DisplayName
		if name == "" {
			name = s.Name
		}
		fmt.Fprintf(&b, "\n%d. %s - %s", *s.Position, name, s.Role)
	}
	e.say(ctx, b.String())
}

func (e *Engine) cmdBranding(ctx context.Context, args string) {
	key, value, ok := strings.Cut(args, " ")
	if !ok || strings.TrimSpace(value) == "" {
		if len(e.tenant.Branding) == 0 {
			e.say(ctx, "No branding hints set. /branding style minimalist, /branding palette \"navy and cream\", and so on.")
			return
		}
		var b strings.Builder
		b.WriteString("Branding hints:\n")
		for k, v := range e.tenant.Branding {
			fmt.Fprintf(&b, "\n%s: %s", k, v)
		}
		e.say(ctx, b.String())
		return
	}
	if e.tenant.Branding == nil {
		e.tenant.Branding = make(map[string]string)
	}
	e.tenant.Branding[strings.ToLower(key)] = strings.Trim(value, `"`)
	if err := e.deps.Stores.Tenants.Update(ctx, e.tenant); err != nil {
		e.logger.Error("tenant update failed", "error", err)
		e.say(ctx, "Saving the branding hint failed. Please try again.")
		return
	}
	e.say(ctx, fmt.Sprintf("Got it: %s = %s.", strings.ToLower(key), strings.Trim(value, `"`)))
}

func (e *Engine) cmdStatus(ctx context.Context) {
	stages, _ := e.deps.Stores.Stages.ListActive(ctx, e.tenant.ID)
	schedules, _ := e.deps.Stores.Schedules.ListActive(ctx, e.tenant.ID)
	drafts, _ := e.deps.Stores.Drafts.CountByTenant(ctx, e.tenant.ID)

	var b strings.Builder
	fmt.Fprintf(&b, "Workspace %s\n", e.tenant.Name)
	fmt.Fprintf(&b, "\nPipeline stages: %d", len(stages))
	fmt.Fprintf(&b, "\nActive schedules: %d", len(schedules))
	fmt.Fprintf(&b, "\nDrafts produced: %d", drafts)
	fmt.Fprintf(&b, "\nRuns left this hour: %d", e.deps.Limiter.Remaining(e.tenant.ID))
	e.say(ctx, b.String())
}
