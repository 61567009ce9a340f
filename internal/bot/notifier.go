package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/rbac"
)

// claimTTL bounds how long a delivered alert id is remembered.
const claimTTL = time.Hour

// Notifier forwards order feed events that need a human to the admins.
// Every replica subscribes, the deduper lets one of them send the alert.
type Notifier struct {
	subscriber events.Subscriber
	dedup      events.Deduper
	authz      *rbac.Authorizer
	msg        Messenger
	log        *zap.Logger
}

func NewNotifier(subscriber events.Subscriber, dedup events.Deduper, authz *rbac.Authorizer, msg Messenger, log *zap.Logger) *Notifier {
	return &Notifier{subscriber: subscriber, dedup: dedup, authz: authz, msg: msg, log: log}
}

// Start subscribes until ctx is canceled.
func (n *Notifier) Start(ctx context.Context) error {
	return n.subscriber.Subscribe(ctx, events.StreamOrders, func(event events.Event) {
		n.handle(ctx, event)
	})
}

func (n *Notifier) handle(ctx context.Context, event events.Event) {
	if event.Type != events.EventDeliveryFailed {
		return
	}
	if id, ok := event.Payload["event_id"].(string); ok && id != "" {
		claimed, err := n.dedup.Claim(ctx, "alert:"+id, claimTTL)
		if err != nil {
			n.log.Warn("alert dedup unavailable, sending anyway", zap.String("event_id", id), zap.Error(err))
		} else if !claimed {
			return
		}
	}

	text := fmt.Sprintf("⚠️ <b>Файл не доставлен</b>\n\n🧾 Заказ #%s\n👤 %s\n📕 %s\n❗ %s\n\nДоступ уже выдан, пользователь может скачать тома из «Мои томы».",
		payloadID(event.Payload["order_id"]),
		payloadID(event.Payload["chat_id"]),
		html.EscapeString(fmt.Sprint(event.Payload["volume"])),
		html.EscapeString(fmt.Sprint(event.Payload["error"])),
	)
	for _, adminID := range n.authz.Admins() {
		if err := n.msg.SendText(ctx, adminID, text); err != nil {
			n.log.Warn("failed to alert admin", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

// payloadID prints an id that may have round-tripped through JSON as float64.
func payloadID(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
