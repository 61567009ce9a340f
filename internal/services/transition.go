package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/metrics"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/store"
)

// Actor identifies who triggered an operation.
type Actor struct {
	ExternalID int64
	Handle     *string
}

func (a Actor) ref() *int64 {
	id := a.ExternalID
	return &id
}

// transition validates and applies one lifecycle event to a locked order
// inside tx, with audit logging. It returns the side effects the caller
// must perform once tx commits.
func transition(ctx context.Context, tx store.Store, o *models.Order, event models.OrderEvent, upd store.OrderUpdate, actor *int64, actorType string) ([]models.SideEffect, error) {
	from := o.Status
	to, effects, err := models.Transition(from, event)
	if err != nil {
		return nil, err
	}

	upd.Status = to
	if err := tx.UpdateOrderStatus(ctx, o.ID, upd); err != nil {
		return nil, err
	}
	o.Status = to
	if upd.ProofRef != nil {
		o.ProofRef = upd.ProofRef
	}
	if upd.TxRef != nil {
		o.TxRef = upd.TxRef
	}
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}

	err = tx.LogAudit(ctx, models.AuditLog{
		ActorExternalID: actor,
		ActorType:       actorType,
		Action:          fmt.Sprintf("order_%s", event),
		EntityType:      store.EntityOrder,
		EntityID:        o.ID,
		Meta:            map[string]any{"old_status": string(from), "new_status": string(to)},
	})
	if err != nil {
		return nil, err
	}
	return effects, nil
}

// lockOrder loads an order under a row lock, mapping a missing row to ErrOrderNotFound.
func lockOrder(ctx context.Context, tx store.Store, id int64) (*models.Order, error) {
	o, err := tx.GetOrderForUpdate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return o, err
}

// lockLastOpenOrder finds the newest open order of an account and locks it.
func lockLastOpenOrder(ctx context.Context, tx store.Store, accountID int64) (*models.Order, error) {
	last, err := tx.GetLastOpenOrder(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoOpenOrder
	}
	if err != nil {
		return nil, err
	}
	o, err := tx.GetOrderForUpdate(ctx, last.ID)
	if err != nil {
		return nil, err
	}
	// закрыт параллельно, пока брали блокировку
	if !o.Status.IsOpen() {
		return nil, ErrNoOpenOrder
	}
	return o, nil
}

// published runs after commit: counters and the order feed event.
func published(ctx context.Context, pub events.Publisher, log *zap.Logger, o *models.Order, from models.OrderStatus) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(o.Status)).Inc()

	err := pub.Publish(ctx, events.StreamOrders, events.Event{
		Type: events.EventOrderStatusChanged,
		Payload: map[string]any{
			"order_id":   o.ID,
			"account_id": o.AccountID,
			"product_id": o.ProductID,
			"old_status": string(from),
			"new_status": string(o.Status),
		},
	})
	if err != nil {
		log.Warn("failed to publish order event", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
