// Package transport defines the chat surface a tenant session runs on.
// Each transport instance is bound to one bot identity and one chat;
// events from any other chat never reach the session.
package transport

import "context"

// EventKind distinguishes the inbound event types a session handles.
type EventKind string

const (
	EventText     EventKind = "text"
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
)

// Event is one inbound chat event, already filtered to the bound chat.
type Event struct {
	Kind   EventKind
	ChatID string

	// Text is set for EventText.
	Text string

	// Command and Args are set for EventCommand. Command carries no
	// leading slash.
	Command string
	Args    string

	// Data is set for EventCallback and carries the button payload.
	Data string
}

// Button is one inline menu choice.
type Button struct {
	Label string
	Data  string
}

// Transport is the outbound side of a chat surface plus its event feed.
type Transport interface {
	// Open connects and starts delivering events. It returns once the
	// connection is established; event delivery continues until Close
	// or ctx cancellation.
	Open(ctx context.Context) error

	// Close shuts the connection down and closes the event channel.
	Close(ctx context.Context) error

	// Events yields inbound events in arrival order.
	Events() <-chan Event

	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, caption string, image []byte) error
	SendMenu(ctx context.Context, text string, rows [][]Button) error
}
