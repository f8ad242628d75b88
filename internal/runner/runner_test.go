package runner

import (
	"context"
	"errors"
	"testing"
)

func TestAnthropicRunnerNoCredential(t *testing.T) {
	r := NewAnthropicRunner(AnthropicConfig{})
	_, err := r.Run(context.Background(), "instruction", "input", Options{})
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("Run() error = %v, want ErrNoCredential", err)
	}
}

func TestOpenAIRunnerNoCredential(t *testing.T) {
	r := NewOpenAIRunner(OpenAIConfig{})
	_, err := r.Run(context.Background(), "instruction", "input", Options{})
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("Run() error = %v, want ErrNoCredential", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	var gotInstruction string
	f := Func(func(_ context.Context, instruction, input string, _ Options) (string, error) {
		gotInstruction = instruction
		return input + "!", nil
	})
	out, err := f.Run(context.Background(), "shout", "hello", Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "hello!" || gotInstruction != "shout" {
		t.Errorf("Run() = %q with instruction %q", out, gotInstruction)
	}
}

func TestModelDefaults(t *testing.T) {
	a := NewAnthropicRunner(AnthropicConfig{})
	if a.cfg.FastModel == "" || a.cfg.QualityModel == "" {
		t.Error("anthropic model defaults not applied")
	}
	o := NewOpenAIRunner(OpenAIConfig{})
	if o.cfg.FastModel == "" || o.cfg.QualityModel == "" {
		t.Error("openai model defaults not applied")
	}
}
