package telegram

import (
	"context"
	"strings"
	"testing"

	botmodels "github.com/go-telegram/bot/models"

	"github.com/inkwellhq/inkwell/internal/transport"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New(Config{Token: "123:abc", ChatID: "42"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Token: "123:abc", ChatID: "42"}, false},
		{"missing token", Config{ChatID: "42"}, true},
		{"missing chat", Config{Token: "123:abc"}, true},
		{"non numeric chat", Config{Token: "123:abc", ChatID: "general"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleMessageParsesCommands(t *testing.T) {
	tests := []struct {
		name string
		text string
		want transport.Event
	}{
		{
			name: "plain text",
			text: "write about recovery",
			want: transport.Event{Kind: transport.EventText, ChatID: "42", Text: "write about recovery"},
		},
		{
			name: "bare command",
			text: "/status",
			want: transport.Event{Kind: transport.EventCommand, ChatID: "42", Command: "status"},
		},
		{
			name: "command with args",
			text: "/trigger weekly tips",
			want: transport.Event{Kind: transport.EventCommand, ChatID: "42", Command: "trigger", Args: "weekly tips"},
		},
		{
			name: "command with bot suffix",
			text: "/Status@inkwell_bot",
			want: transport.Event{Kind: transport.EventCommand, ChatID: "42", Command: "status"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransport(t)
			tr.handleMessage(context.Background(), &botmodels.Message{
				Chat: botmodels.Chat{ID: 42},
				Text: tt.text,
			})
			select {
			case got := <-tr.Events():
				if got != tt.want {
					t.Errorf("event = %+v, want %+v", got, tt.want)
				}
			default:
				t.Fatal("no event delivered")
			}
		})
	}
}

func TestHandleMessageDropsForeignChat(t *testing.T) {
	tr := newTestTransport(t)
	tr.handleMessage(context.Background(), &botmodels.Message{
		Chat: botmodels.Chat{ID: 999},
		Text: "hi",
	})
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event from foreign chat: %+v", ev)
	default:
	}
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("paragraph line\n", 400)
	chunks := splitMessage(long, maxMessageLen)
	if len(chunks) < 2 {
		t.Fatalf("long text not split: %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > maxMessageLen {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
	}
	if got := splitMessage("short", maxMessageLen); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text altered: %q", got)
	}
}
