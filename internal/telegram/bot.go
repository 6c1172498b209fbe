// Package telegram is the Bot API transport: it turns chat messages and
// inline queries into requests and renders their outcomes.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/service"
)

// Sender is the subset of *tgbotapi.BotAPI used by the bot.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RequestHandler runs a request through the coordinator.
type RequestHandler interface {
	Handle(ctx context.Context, req domain.Request, delivery service.Delivery) domain.Outcome
}

// Config holds bot configuration.
type Config struct {
	// CacheChatID receives silent uploads whose file ids answer inline
	// queries. Zero disables inline media.
	CacheChatID int64
	Retry       RetryConfig
}

// Bot dispatches updates to the coordinator, one goroutine per update.
type Bot struct {
	api      Sender
	requests RequestHandler
	cfg      Config
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewBot creates a bot.
func NewBot(api Sender, requests RequestHandler, cfg Config, logger *slog.Logger) *Bot {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		api:      api,
		requests: requests,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run consumes updates until ctx is done or the channel closes, then waits
// for in-flight updates to finish.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	b.logger.Info("telegram bot started", "cache_chat", b.cfg.CacheChatID != 0)
	defer b.logger.Info("telegram bot stopped")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic handling update", "update_id", update.UpdateID, "panic", rec)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.InlineQuery != nil:
		b.handleInline(ctx, update.InlineQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		if msg.Command() == "start" {
			b.reply(ctx, msg, TextStart)
		}
		return
	}
	if msg.Text == "" {
		return
	}

	delivery := &chatDelivery{bot: b, chatID: msg.Chat.ID, replyTo: msg.MessageID}
	outcome := b.requests.Handle(ctx, domain.Request{
		UserID:  senderID(msg.From, msg.Chat.ID),
		RawText: msg.Text,
		Kind:    domain.RequestKindDirect,
	}, delivery)

	if text := Reply(outcome.Class); text != "" {
		b.reply(ctx, msg, text)
	}
}

func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	if strings.TrimSpace(q.Query) == "" {
		return
	}

	delivery := &inlineDelivery{bot: b, queryID: q.ID}
	outcome := b.requests.Handle(ctx, domain.Request{
		UserID:  senderID(q.From, 0),
		RawText: q.Query,
		Kind:    domain.RequestKindInline,
	}, delivery)

	if outcome.OK() {
		return
	}
	a := inlineReply(outcome.Class)
	b.answerInline(ctx, q.ID, tgbotapi.NewInlineQueryResultArticle(a.id, a.title, a.text))
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	if _, err := b.send(ctx, m); err != nil {
		b.logger.Warn("failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) answerInline(ctx context.Context, queryID string, results ...interface{}) error {
	answer := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		IsPersonal:    true,
	}
	_, err := retryWithCheck(ctx, b.cfg.Retry, func() (*tgbotapi.APIResponse, error) {
		return b.api.Request(answer)
	}, isRetryable)
	if err != nil {
		b.logger.Warn("failed to answer inline query", "query_id", queryID, "error", err)
		return fmt.Errorf("answer inline query: %w", err)
	}
	return nil
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return retryWithCheck(ctx, b.cfg.Retry, func() (tgbotapi.Message, error) {
		return b.api.Send(c)
	}, isRetryable)
}

func senderID(from *tgbotapi.User, fallback int64) domain.UserID {
	if from != nil {
		return domain.UserID(strconv.FormatInt(from.ID, 10))
	}
	return domain.UserID(strconv.FormatInt(fallback, 10))
}
