package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/inkwellhq/inkwell/pkg/models"
)

func TestOnboardingWizardCreatesStage(t *testing.T) {
	h := newHarness(t, testTenant())
	ctx := context.Background()

	h.engine.HandleEvent(ctx, command("new_stage", ""))
	if h.engine.state().Phase != PhaseOnboarding {
		t.Fatalf("phase = %v, want onboarding", h.engine.state().Phase)
	}

	h.engine.HandleEvent(ctx, text("Fact Checker"))
	h.engine.HandleEvent(ctx, text("verifies claims against the research"))
	h.engine.HandleEvent(ctx, text("Cross-check every number and name, flag anything dubious."))

	menu := h.tr.lastMenu()
	if len(menu.rows) != 1 {
		t.Fatalf("position menu rows = %d, want 1 (empty pipeline)", len(menu.rows))
	}

	h.engine.HandleEvent(ctx, callback("pos:1"))
	stages, err := h.stores.Stages.ListActive(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(stages))
	}
	got := stages[0]
	if got.Name != "fact_checker" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Role != "verifies claims against the research" {
		t.Errorf("role = %q", got.Role)
	}
	// The instructor model writes the final instruction.
	if got.Instruction != "You refine the text you receive." {
		t.Errorf("instruction = %q", got.Instruction)
	}
	if got.Position == nil || *got.Position != 1 {
		t.Errorf("position = %v", got.Position)
	}
	if h.engine.state().Phase != PhaseIdle {
		t.Errorf("phase = %v, want idle", h.engine.state().Phase)
	}
}

func TestOnboardingInsertShiftsExistingStages(t *testing.T) {
	h := newHarness(t, testTenant())
	ctx := context.Background()

	one, two := 1, 2
	existing := []*models.StageDefinition{
		{TenantID: "t1", Name: "researcher", Role: "finds angles", Instruction: "research", Position: &one, Active: true},
		{TenantID: "t1", Name: "writer", Role: "writes posts", Instruction: "write", Position: &two, Active: true},
	}
	for _, s := range existing {
		if err := h.stores.Stages.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	h.engine.HandleEvent(ctx, command("new_stage", ""))
	h.engine.HandleEvent(ctx, text("fact checker"))
	h.engine.HandleEvent(ctx, text("verifies claims"))
	h.engine.HandleEvent(ctx, text("check the numbers"))

	menu := h.tr.lastMenu()
	if len(menu.rows) != 3 {
		t.Fatalf("position menu rows = %d, want 3", len(menu.rows))
	}

	// Insert between researcher and writer.
	h.engine.HandleEvent(ctx, callback("pos:2"))
	stages, err := h.stores.Stages.ListActive(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, s := range stages {
		order = append(order, s.Name)
	}
	want := "researcher,fact_checker,writer"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("pipeline order = %s, want %s", got, want)
	}
}

func TestOnboardingCancel(t *testing.T) {
	h := newHarness(t, testTenant())
	ctx := context.Background()

	h.engine.HandleEvent(ctx, command("new_stage", ""))
	h.engine.HandleEvent(ctx, text("half-finished"))
	h.engine.HandleEvent(ctx, command("cancel", ""))
	if h.engine.state().Phase != PhaseIdle {
		t.Errorf("phase = %v, want idle", h.engine.state().Phase)
	}
	stages, err := h.stores.Stages.List(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 0 {
		t.Errorf("cancelled wizard persisted %d stages", len(stages))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Fact Checker", "fact_checker"},
		{"  SEO-optimizer ", "seo_optimizer"},
		{"writer", "writer"},
		{"éditeur!", "diteur"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
