// Package telegram адаптирует go-telegram/bot для доставки и публикации.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"holclub_bot/database"
	"holclub_bot/notify"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

var (
	blockedMarkers = []string{
		"bot was blocked by the user",
	}
	unreachableMarkers = []string{
		"chat not found",
		"user is deactivated",
		"user not found",
		"bot can't initiate conversation with a user",
		"peer_id_invalid",
	}
)

// Classify относит ошибку Bot API к одному из классов доставки.
func Classify(err error) notify.Failure {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, m := range blockedMarkers {
		if strings.Contains(msg, m) {
			return notify.FailureBlocked
		}
	}
	for _, m := range unreachableMarkers {
		if strings.Contains(msg, m) {
			return notify.FailureUnreachable
		}
	}
	if errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorNotFound) {
		return notify.FailureUnreachable
	}
	return notify.FailureTransient
}

type Client struct {
	bot *bot.Bot
}

func New(b *bot.Bot) *Client {
	return &Client{bot: b}
}

// keyboard возвращает nil-интерфейс для пустой клавиатуры.
func keyboard(buttons [][]notify.Button) models.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		r := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			r = append(r, models.InlineKeyboardButton{Text: btn.Text, URL: btn.URL, CallbackData: btn.Data})
		}
		rows = append(rows, r)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Send реализует notify.Sender. Ошибка всегда *notify.DeliveryError.
func (c *Client) Send(ctx context.Context, recipientID int64, text string, buttons [][]notify.Button) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      recipientID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard(buttons),
	})
	if err != nil {
		return &notify.DeliveryError{RecipientID: recipientID, Failure: Classify(err), Err: err}
	}
	return nil
}

// PostEvent публикует анонс (с фото, если есть) и возвращает id сообщения.
func (c *Client) PostEvent(ctx context.Context, chatID int64, text, photoFileID string, buttons [][]notify.Button) (int, error) {
	var (
		msg *models.Message
		err error
	)
	if photoFileID != "" {
		msg, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      chatID,
			Photo:       &models.InputFileString{Data: photoFileID},
			Caption:     text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: keyboard(buttons),
		})
	} else {
		msg, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: keyboard(buttons),
		})
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (c *Client) DeletePost(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	return err
}

// CreateThread создаёт тему форума и первое сообщение в ней; на него ведёт deep link.
func (c *Client) CreateThread(ctx context.Context, chatID int64, name, intro string) (database.ThreadRef, error) {
	topic, err := c.bot.CreateForumTopic(ctx, &bot.CreateForumTopicParams{ChatID: chatID, Name: name})
	if err != nil {
		return database.ThreadRef{}, fmt.Errorf("создание темы: %w", err)
	}
	msg, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		MessageThreadID: topic.MessageThreadID,
		Text:            intro,
	})
	if err != nil {
		return database.ThreadRef{}, fmt.Errorf("сообщение в теме: %w", err)
	}
	return database.ThreadRef{
		ChatID:       chatID,
		ThreadID:     topic.MessageThreadID,
		MessageID:    msg.ID,
		ChatUsername: msg.Chat.Username,
	}, nil
}

func (c *Client) DeleteThread(ctx context.Context, chatID int64, threadID int) error {
	_, err := c.bot.DeleteForumTopic(ctx, &bot.DeleteForumTopicParams{ChatID: chatID, MessageThreadID: threadID})
	return err
}

// CreateInviteLink: именованная инвайт-ссылка в общий чат (имя не длиннее 32 символов).
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error) {
	suffix := uuid.NewString()[:8]
	runes := []rune(name)
	if len(runes) > 23 {
		runes = runes[:23]
	}
	link, err := c.bot.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID: chatID,
		Name:   string(runes) + "-" + suffix,
	})
	if err != nil {
		return "", fmt.Errorf("инвайт-ссылка: %w", err)
	}
	return link.InviteLink, nil
}

// SendQR отправляет PNG как фото.
func (c *Client) SendQR(ctx context.Context, chatID int64, png []byte, caption string) error {
	_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "attendance.png", Data: bytes.NewReader(png)},
		Caption: caption,
	})
	if err != nil {
		return &notify.DeliveryError{RecipientID: chatID, Failure: Classify(err), Err: err}
	}
	return nil
}
