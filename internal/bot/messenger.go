package bot

import (
	"context"

	"github.com/digital-shop/bot/internal/telegram"
)

// Button is an inline button: either a callback or a link.
type Button struct {
	Text string
	Data string
	URL  string
}

// Messenger is the outbound side of the conversation.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, rows [][]Button) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
	SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error
	SendFile(ctx context.Context, chatID int64, fileRef, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// TelegramMessenger adapts the Bot API client. It also serves as the
// services.FileSender for product delivery.
type TelegramMessenger struct {
	client *telegram.Client
}

func NewTelegramMessenger(client *telegram.Client) *TelegramMessenger {
	return &TelegramMessenger{client: client}
}

func (m *TelegramMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	return m.client.SendMessage(ctx, chatID, text, nil)
}

func (m *TelegramMessenger) SendMenu(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	return m.client.SendMessage(ctx, chatID, text, keyboard(rows))
}

func (m *TelegramMessenger) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	return m.client.SendDocument(ctx, chatID, path, caption)
}

func (m *TelegramMessenger) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error {
	return m.client.SendPhoto(ctx, chatID, fileRef, caption)
}

func (m *TelegramMessenger) SendFile(ctx context.Context, chatID int64, fileRef, caption string) error {
	return m.client.ForwardDocument(ctx, chatID, fileRef, caption)
}

func (m *TelegramMessenger) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return m.client.AnswerCallbackQuery(ctx, callbackID, text, alert)
}

func keyboard(rows [][]Button) *telegram.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			out = append(out, telegram.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data, URL: b.URL})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}
