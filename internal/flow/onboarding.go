package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// startOnboarding begins the add-a-stage wizard: name, role, a free-form
// description, then a position in the pipeline.
func (e *Engine) startOnboarding(ctx context.Context) {
	e.setState(State{Phase: PhaseOnboarding, Step: StepName})
	e.say(ctx, "Let's add a pipeline stage. What should it be called? Short and lowercase works best, like fact_checker.")
}

func (e *Engine) handleOnboardingText(ctx context.Context, st State, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.say(ctx, "I need a bit of text here, or /cancel to stop.")
		return
	}

	switch st.Step {
	case StepName:
		st.StageName = slugify(text)
		st.Step = StepRole
		e.setState(st)
		e.say(ctx, fmt.Sprintf("%s it is. What role does it play? One line, like \"verifies claims against the research\".", st.StageName))
	case StepRole:
		st.StageRole = text
		st.Step = StepInstructions
		e.setState(st)
		e.say(ctx, "Now describe in your own words what this stage should do with the text it receives. I'll turn that into proper instructions.")
	case StepInstructions:
		st.StageDescription = text
		st.Step = StepPosition
		e.setState(st)
		e.sendPositionMenu(ctx)
	}
}

func (e *Engine) sendPositionMenu(ctx context.Context) {
	next, err := e.deps.Stores.Stages.NextPosition(ctx, e.tenant.ID)
	if err != nil {
		e.logger.Error("next position failed", "error", err)
		next = 1
	}
	rows := make([][]transport.Button, 0, next)
	for pos := 1; pos < next; pos++ {
		rows = append(rows, []transport.Button{{
			Label: fmt.Sprintf("Slot %d (pushes the rest down)", pos),
			Data:  "pos:" + strconv.Itoa(pos),
		}})
	}
	rows = append(rows, []transport.Button{{
		Label: "At the end",
		Data:  "pos:" + strconv.Itoa(next),
	}})
	if err := e.deps.Transport.SendMenu(ctx, "Where in the pipeline does it run?", rows); err != nil {
		e.logger.Warn("position menu failed", "error", err)
	}
}

func (e *Engine) onPositionChosen(ctx context.Context, st State, value string) {
	position, err := strconv.Atoi(value)
	if err != nil || position < 1 {
		e.logger.Debug("bad position choice", "value", value)
		return
	}
	e.clearState()
	e.say(ctx, "Writing the stage instructions...")

	instruction := e.composeInstruction(ctx, st)

	// Shift occupied slots down, last first, so positions stay unique.
	stages, err := e.deps.Stores.Stages.ListActive(ctx, e.tenant.ID)
	if err != nil {
		e.logger.Error("stage list failed", "error", err)
		e.say(ctx, "Saving the stage failed. Please try again.")
		return
	}
	for i := len(stages) - 1; i >= 0; i-- {
		if *stages[i].Position < position {
			continue
		}
		if err := e.deps.Stores.Stages.SetPosition(ctx, stages[i].ID, *stages[i].Position+1); err != nil {
			e.logger.Error("stage shift failed", "stage", stages[i].ID, "error", err)
			e.say(ctx, "Saving the stage failed. Please try again.")
			return
		}
	}

	stage := &models.StageDefinition{
		TenantID:    e.tenant.ID,
		Name:        st.StageName,
		DisplayName: strings.ReplaceAll(st.StageName, "_", " "),
		Role:        st.StageRole,
		Instruction: instruction,
		Position:    &position,
		Active:      true,
	}
	if err := e.deps.Stores.Stages.Create(ctx, stage); err != nil {
		e.logger.Error("stage create failed", "error", err)
		e.say(ctx, "Saving the stage failed. Please try again.")
		return
	}
	e.say(ctx, fmt.Sprintf("Stage %s is live at position %d. /pipeline shows the full lineup.", stage.Name, position))
}

// composeInstruction asks a quality-tier model to write the stage's
// system prompt from the operator's description, falling back to the raw
// description when no model is available.
func (e *Engine) composeInstruction(ctx context.Context, st State) string {
	if e.deps.Instructor == nil {
		return st.StageDescription
	}
	prompt := fmt.Sprintf(
		"Write a system prompt for a content pipeline stage.\nStage name: %s\nRole: %s\nOperator's description: %s\n\nThe prompt must tell the model exactly how to transform the text it receives, preserve the author's voice, and return only the transformed text. Reply with the prompt alone.",
		st.StageName, st.StageRole, st.StageDescription)

	instruction, err := e.deps.Instructor.Run(ctx, "You write precise system prompts for content tooling.", prompt, runner.Options{
		Credential: e.tenant.AnthropicKey,
		Tier:       runner.TierQuality,
		MaxTokens:  2048,
	})
	if err != nil {
		e.logger.Warn("instruction generation failed, using raw description", "error", err)
		return st.StageDescription
	}
	return strings.TrimSpace(instruction)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
