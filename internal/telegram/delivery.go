package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/grabbot/internal/domain"
)

// chatDelivery replies to a direct message with the media.
type chatDelivery struct {
	bot     *Bot
	chatID  int64
	replyTo int
}

// Accepted tells the user the download has started.
func (d *chatDelivery) Accepted(ctx context.Context) {
	m := tgbotapi.NewMessage(d.chatID, TextAccepted)
	m.ReplyToMessageID = d.replyTo
	if _, err := d.bot.send(ctx, m); err != nil {
		d.bot.logger.Warn("failed to send progress message", "chat_id", d.chatID, "error", err)
	}
}

func (d *chatDelivery) Deliver(ctx context.Context, media *domain.MediaDescriptor) error {
	c := mediaMessage(d.chatID, media)
	switch m := c.(type) {
	case tgbotapi.VideoConfig:
		m.ReplyToMessageID = d.replyTo
		c = m
	case tgbotapi.PhotoConfig:
		m.ReplyToMessageID = d.replyTo
		c = m
	}

	if _, err := d.bot.send(ctx, c); err != nil {
		return fmt.Errorf("send %s: %w", media.Kind, err)
	}
	return nil
}

// inlineDelivery uploads media to the cache chat and answers the inline
// query with the cached file.
type inlineDelivery struct {
	bot     *Bot
	queryID string
}

func (d *inlineDelivery) Deliver(ctx context.Context, media *domain.MediaDescriptor) error {
	chatID := d.bot.cfg.CacheChatID
	if chatID == 0 {
		return domain.ErrNoCacheChat
	}

	c := mediaMessage(chatID, media)
	switch m := c.(type) {
	case tgbotapi.VideoConfig:
		m.DisableNotification = true
		m.Caption = ""
		c = m
	case tgbotapi.PhotoConfig:
		m.DisableNotification = true
		m.Caption = ""
		c = m
	}

	sent, err := d.bot.send(ctx, c)
	if err != nil {
		return fmt.Errorf("upload to cache chat: %w", err)
	}

	result, err := cachedResult(sent, media)
	if err != nil {
		return err
	}
	return d.bot.answerInline(ctx, d.queryID, result)
}

// mediaMessage builds the upload for media, captioned by kind.
func mediaMessage(chatID int64, media *domain.MediaDescriptor) tgbotapi.Chattable {
	file := tgbotapi.FilePath(media.Path)
	if media.IsVideo() {
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = Caption(media.Kind)
		v.SupportsStreaming = true
		return v
	}
	p := tgbotapi.NewPhoto(chatID, file)
	p.Caption = Caption(media.Kind)
	return p
}

// cachedResult turns the cache chat message into an inline result.
func cachedResult(sent tgbotapi.Message, media *domain.MediaDescriptor) (interface{}, error) {
	if media.IsVideo() {
		if sent.Video == nil {
			return nil, fmt.Errorf("cache chat message has no video")
		}
		r := tgbotapi.NewInlineQueryResultCachedVideo("1", sent.Video.FileID, media.Title)
		r.Caption = CaptionVideo
		return r, nil
	}

	if len(sent.Photo) == 0 {
		return nil, fmt.Errorf("cache chat message has no photo")
	}
	// Sizes are ordered smallest first.
	largest := sent.Photo[len(sent.Photo)-1]
	r := tgbotapi.NewInlineQueryResultCachedPhoto("1", largest.FileID)
	r.Title = media.Title
	r.Caption = CaptionPhoto
	return r, nil
}
