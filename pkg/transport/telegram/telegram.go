// Package telegram uses one Telegram group chat as the chat room.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"wisochat/pkg/config"
	"wisochat/pkg/transport"
)

const (
	messagePreviewLimit = 240
	outboxSize          = 64
)

type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Adapter relays group messages in and out through a Telegram bot. Sends
// queue until Run starts.
type Adapter struct {
	*transport.Dispatcher

	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	bot    *telego.Bot
	sender messageSender
	outbox chan string

	runOnce sync.Once
}

var _ transport.Adapter = (*Adapter)(nil)

// New validates cfg and builds the bot client.
func New(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram.chat_id is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	a := newAdapter(cfg, bot, log)
	a.bot = bot
	return a, nil
}

func newAdapter(cfg config.TelegramConfig, sender messageSender, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		Dispatcher: transport.NewDispatcher(),
		cfg:        cfg,
		allowFrom:  allowFromSet(cfg.AllowFrom),
		log:        log.With("component", "transport.telegram", "chat_id", cfg.ChatID),
		sender:     sender,
		outbox:     make(chan string, outboxSize),
	}
}

// Name identifies the room in the UI header.
func (a *Adapter) Name() string {
	return "telegram:" + strconv.FormatInt(a.cfg.ChatID, 10)
}

// Send queues text for the group. A full queue drops the message.
func (a *Adapter) Send(text string) {
	select {
	case a.outbox <- text:
	default:
		a.log.Warn("Dropping outbound message, queue full", "content", previewText(text))
	}
}

// Run long-polls updates and drains the send queue until ctx ends. It may
// run once.
func (a *Adapter) Run(ctx context.Context) error {
	started := false
	a.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("telegram adapter already running")
	}
	if a.bot == nil {
		return errors.New("telegram bot is not configured")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	go a.sendLoop(ctx)
	a.log.Info("Telegram room joined")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			a.handleUpdate(update)
		}
	}
}

func (a *Adapter) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.outbox:
			a.deliverOutbound(ctx, text)
		}
	}
}

func (a *Adapter) deliverOutbound(ctx context.Context, text string) {
	if _, err := a.sender.SendMessage(ctx, tu.Message(tu.ID(a.cfg.ChatID), text)); err != nil {
		a.log.Error("Failed to send telegram message", "error", err)
		return
	}
	a.log.Debug("Sent message", "content", previewText(text))
}

// handleUpdate delivers group text messages from allowed senders.
func (a *Adapter) handleUpdate(update telego.Update) bool {
	message := update.Message
	if message == nil || message.Chat.ID != a.cfg.ChatID {
		return false
	}
	// Stickers, photos and service messages carry no text.
	if message.Text == "" {
		return false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return false
	}

	a.log.Debug("Received message", "sender_id", senderID, "update_id", update.UpdateID, "content", previewText(message.Text))
	a.Deliver(message.Text)
	return true
}

// senderAllowed reports whether allow_from admits senderID. An empty list
// admits everyone.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func allowFromSet(allowFrom []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}

	if len(allowed) == 0 {
		return nil
	}
	return allowed
}

// previewText bounds message text for logs.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	cut := messagePreviewLimit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}
