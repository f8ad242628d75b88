package flow

import (
	"sync"

	"github.com/inkwellhq/inkwell/internal/pipeline"
	"github.com/inkwellhq/inkwell/pkg/models"
)

// Phase names the conversation step a chat is waiting on.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFormat
	PhaseAwaitingResearchChoice
	PhaseAwaitingTopicChoice
	PhaseAwaitingImageConfirm
	PhaseAwaitingPublishConfirm
	PhaseOnboarding
)

// OnboardingStep walks the new-stage wizard.
type OnboardingStep int

const (
	StepName OnboardingStep = iota
	StepRole
	StepInstructions
	StepPosition
)

// State is everything a chat needs to resume its pending interaction.
// One chat has exactly one State; any new request replaces it.
type State struct {
	Phase Phase

	// Topic and ContextText carry a pending content request. AllowVerbatim
	// marks context mode, where the user may skip the pipeline entirely.
	Topic         string
	ContextText   string
	AllowVerbatim bool

	// Research holds the researcher output while the user picks a topic.
	Research *pipeline.Research

	// Options are the topic choices currently on screen.
	Options []string

	// Format is fixed ahead of time for schedule firings.
	Format models.Format

	// DraftID points at the draft awaiting image or publish confirmation.
	DraftID string

	// Wizard state for PhaseOnboarding.
	Step             OnboardingStep
	StageName        string
	StageRole        string
	StageDescription string
}

// StateStore keeps per-chat conversation state. Implementations must be
// safe for concurrent use; distinct chats are handled by distinct
// sessions but share one store.
type StateStore interface {
	Get(tenantID, chatID string) State
	Put(tenantID, chatID string, st State)
	Clear(tenantID, chatID string)
}

type memoryStates struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStates returns an in-memory StateStore. Conversation state is
// deliberately ephemeral; a restart lands every chat back in idle.
func NewMemoryStates() StateStore {
	return &memoryStates{states: make(map[string]State)}
}

func stateKey(tenantID, chatID string) string {
	return tenantID + "/" + chatID
}

func (m *memoryStates) Get(tenantID, chatID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[stateKey(tenantID, chatID)]
}

func (m *memoryStates) Put(tenantID, chatID string, st State) {
	m.mu.Lock()
	m.states[stateKey(tenantID, chatID)] = st
	m.mu.Unlock()
}

func (m *memoryStates) Clear(tenantID, chatID string) {
	m.mu.Lock()
	delete(m.states, stateKey(tenantID, chatID))
	m.mu.Unlock()
}
