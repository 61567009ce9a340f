package bot

import (
	"strings"

	"github.com/digital-shop/bot/internal/telegram"
)

type EventType string

const (
	EventCommand  EventType = "command"
	EventCallback EventType = "callback"
	EventMessage  EventType = "message"
)

// Event is one inbound chat interaction, independent of the transport.
type Event struct {
	Type        EventType
	UpdateID    int64
	CallbackID  string
	ActorID     int64
	ActorHandle *string
	ChatID      int64
	Payload     string // текст команды, callback data или текст сообщения
	FileRef     string
	IsPhoto     bool
}

// FromUpdate normalizes a Telegram update. Updates without a sender are skipped.
func FromUpdate(u telegram.Update) (Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ev := Event{
			Type:        EventCallback,
			UpdateID:    u.UpdateID,
			CallbackID:  cq.ID,
			ActorID:     cq.From.ID,
			ActorHandle: handle(cq.From.Username),
			ChatID:      cq.From.ID,
			Payload:     cq.Data,
		}
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		return ev, true

	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		ev := Event{
			Type:        EventMessage,
			UpdateID:    u.UpdateID,
			ActorID:     m.From.ID,
			ActorHandle: handle(m.From.Username),
			ChatID:      m.Chat.ID,
			Payload:     m.Text,
		}
		if m.IsCommand() {
			ev.Type = EventCommand
		}
		if p, ok := m.LargestPhoto(); ok {
			ev.FileRef = p.FileID
			ev.IsPhoto = true
		} else if m.Document != nil {
			ev.FileRef = m.Document.FileID
		}
		return ev, true
	}
	return Event{}, false
}

func handle(username string) *string {
	if username == "" {
		return nil
	}
	return &username
}

// parseCommand splits "/confirm@shop_bot 1 2" into "confirm" and its args.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}
