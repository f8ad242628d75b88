// Package runner abstracts the text-generation backend that executes one
// pipeline stage. Implementations wrap a provider SDK; callers see only
// free text in, free text out.
package runner

import (
	"context"
	"errors"
)

// Tier selects the model quality/latency tradeoff for a call.
type Tier string

const (
	// TierFast is used for chat replies and intent classification.
	TierFast Tier = "fast"
	// TierQuality is used for pipeline stages and prompt generation.
	TierQuality Tier = "quality"
)

// Sentinel errors. ErrNoCredential must stay distinguishable from
// ErrUnavailable so sessions can tell a misconfigured tenant from a
// provider outage.
var (
	ErrNoCredential = errors.New("runner: no credential configured")
	ErrUnavailable  = errors.New("runner: upstream unavailable")
)

// Options tune a single stage invocation.
type Options struct {
	// Credential is the tenant-scoped API key. Empty means the runner's
	// default key; if neither exists the call fails with ErrNoCredential.
	Credential string

	Tier      Tier
	MaxTokens int
}

// StageRunner invokes one generation call with a stage instruction and the
// accumulated context text, returning the stage's raw output.
type StageRunner interface {
	Run(ctx context.Context, instruction, input string, opts Options) (string, error)
}

// Func adapts a plain function to a StageRunner.
type Func func(ctx context.Context, instruction, input string, opts Options) (string, error)

// Run executes the function.
func (f Func) Run(ctx context.Context, instruction, input string, opts Options) (string, error) {
	return f(ctx, instruction, input, opts)
}
