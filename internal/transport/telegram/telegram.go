// Package telegram implements the chat transport on the Telegram Bot API
// using long polling. One Transport serves exactly one bot token and one
// chat; updates from other chats are dropped at the edge.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"

	"github.com/inkwellhq/inkwell/internal/transport"
)

// maxMessageLen is Telegram's hard limit per message, with headroom for
// entity expansion.
const maxMessageLen = 3900

// Config holds the settings for one tenant's Telegram connection.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token string

	// ChatID is the only chat this transport accepts events from and
	// sends to (required).
	ChatID string

	// QueueSize bounds the inbound event buffer.
	QueueSize int

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("telegram: token is required")
	}
	if c.ChatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}
	if _, err := strconv.ParseInt(c.ChatID, 10, 64); err != nil {
		return fmt.Errorf("telegram: chat_id must be numeric: %w", err)
	}
	if c.QueueSize == 0 {
		c.QueueSize = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Transport implements transport.Transport over long polling.
type Transport struct {
	config Config
	chatID int64
	bot    *bot.Bot
	events chan transport.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Telegram transport. The connection is not established
// until Open is called.
func New(config Config) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	chatID, _ := strconv.ParseInt(config.ChatID, 10, 64)
	return &Transport{
		config: config,
		chatID: chatID,
		events: make(chan transport.Event, config.QueueSize),
		logger: config.Logger.With("transport", "telegram", "chat_id", config.ChatID),
	}, nil
}

// Open authenticates with the Bot API and starts the polling loop.
func (t *Transport) Open(ctx context.Context) error {
	b, err := bot.New(t.config.Token, bot.WithDefaultHandler(t.handleUpdate))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = b

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.closeEvents()
		t.bot.Start(pollCtx)
		t.logger.Info("polling stopped")
	}()

	t.logger.Info("transport opened")
	return nil
}

// Close stops polling and waits for the event loop to drain, or for ctx.
func (t *Transport) Close(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.logger.Info("transport closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) closeEvents() {
	t.closeOnce.Do(func() { close(t.events) })
}

// Events yields inbound events from the bound chat.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

func (t *Transport) handleUpdate(ctx context.Context, b *bot.Bot, update *botmodels.Update) {
	switch {
	case update.Message != nil:
		t.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, b, update.CallbackQuery)
	}
}

func (t *Transport) handleMessage(ctx context.Context, msg *botmodels.Message) {
	if msg.Chat.ID != t.chatID {
		t.logger.Debug("dropping message from foreign chat", "from_chat", msg.Chat.ID)
		return
	}
	if msg.Text == "" {
		return
	}

	ev := transport.Event{
		Kind:   transport.EventText,
		ChatID: t.config.ChatID,
		Text:   msg.Text,
	}
	if strings.HasPrefix(msg.Text, "/") {
		cmd, args, _ := strings.Cut(msg.Text[1:], " ")
		// Strip the @botname suffix used in group chats.
		cmd, _, _ = strings.Cut(cmd, "@")
		ev = transport.Event{
			Kind:    transport.EventCommand,
			ChatID:  t.config.ChatID,
			Command: strings.ToLower(cmd),
			Args:    strings.TrimSpace(args),
		}
	}
	t.deliver(ctx, ev)
}

func (t *Transport) handleCallback(ctx context.Context, b *bot.Bot, q *botmodels.CallbackQuery) {
	if q.Message.Message == nil || q.Message.Message.Chat.ID != t.chatID {
		return
	}
	// Ack immediately so the client stops its spinner even if handling
	// takes a while.
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
	}); err != nil {
		t.logger.Warn("answer callback failed", "error", err)
	}
	t.deliver(ctx, transport.Event{
		Kind:   transport.EventCallback,
		ChatID: t.config.ChatID,
		Data:   q.Data,
	})
}

func (t *Transport) deliver(ctx context.Context, ev transport.Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	default:
		t.logger.Warn("event queue full, dropping event", "kind", ev.Kind)
	}
}

// SendText sends a plain text message, splitting to respect Telegram's
// per-message length limit.
func (t *Transport) SendText(ctx context.Context, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: t.chatID,
			Text:   chunk,
		}); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	return nil
}

// SendPhoto uploads an image with an optional caption.
func (t *Transport) SendPhoto(ctx context.Context, caption string, image []byte) error {
	_, err := t.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: t.chatID,
		Photo: &botmodels.InputFileUpload{
			Filename: fmt.Sprintf("post-%d.png", time.Now().Unix()),
			Data:     bytes.NewReader(image),
		},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	return nil
}

// SendMenu sends a message with an inline keyboard.
func (t *Transport) SendMenu(ctx context.Context, text string, rows [][]transport.Button) error {
	keyboard := make([][]botmodels.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]botmodels.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, botmodels.InlineKeyboardButton{
				Text:         b.Label,
				CallbackData: b.Data,
			})
		}
		keyboard = append(keyboard, btns)
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      t.chatID,
		Text:        text,
		ReplyMarkup: botmodels.InlineKeyboardMarkup{InlineKeyboard: keyboard},
	})
	if err != nil {
		return fmt.Errorf("telegram: send menu: %w", err)
	}
	return nil
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		if i := strings.LastIndexByte(text[:limit], '\n'); i > limit/2 {
			cut = i
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
