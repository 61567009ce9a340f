package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/catalog"
	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/metrics"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/store"
)

// FileSender uploads a local file to a chat.
type FileSender interface {
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

// Grant is the outcome of a confirmed payment.
type Grant struct {
	Order          *models.Order
	Account        *models.Account
	Product        *catalog.Product
	AlreadyGranted bool
	Effects        []models.SideEffect
}

// OwnedProduct is one entitlement resolved against the catalog.
type OwnedProduct struct {
	Product *catalog.Product
	Access  models.Access
}

type AccessService struct {
	store     store.Store
	catalog   *catalog.Catalog
	files     FileSender
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewAccessService(st store.Store, cat *catalog.Catalog, files FileSender, publisher events.Publisher, log *zap.Logger) *AccessService {
	return &AccessService{
		store:     st,
		catalog:   cat,
		files:     files,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmAndGrant marks the order paid and grants the product to the account
// with accountExternalID, all in one transaction. An existing grant is not an
// error: the files are delivered again.
func (s *AccessService) ConfirmAndGrant(ctx context.Context, adminID, orderID, accountExternalID int64) (*Grant, error) {
	var (
		grant Grant
		from  models.OrderStatus
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return fmt.Errorf("order %d is %s: %w", o.ID, o.Status, ErrOrderClosed)
		}

		product, ok := s.catalog.Product(o.ProductID)
		if !ok {
			return fmt.Errorf("order %d product %d: %w", o.ID, o.ProductID, ErrUnknownProduct)
		}

		// last_seen_at трогает только сам пользователь, поэтому без upsert
		acc, err := tx.GetAccountByExternalID(ctx, accountExternalID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("order %d, user %d: %w", o.ID, accountExternalID, ErrOrderAccountMismatch)
		}
		if err != nil {
			return err
		}
		if acc.ID != o.AccountID {
			return fmt.Errorf("order %d, user %d: %w", o.ID, accountExternalID, ErrOrderAccountMismatch)
		}

		from = o.Status
		paidAt := s.now()
		effects, err := transition(ctx, tx, o, models.EventConfirm, store.OrderUpdate{PaidAt: &paidAt}, &adminID, models.ActorAdmin)
		if err != nil {
			return err
		}

		granted, err := tx.GrantAccess(ctx, acc.ID, product.ID, product.Scope())
		if err != nil {
			return err
		}
		if granted {
			err = tx.LogAudit(ctx, models.AuditLog{
				ActorExternalID: &adminID,
				ActorType:       models.ActorAdmin,
				Action:          "access_granted",
				EntityType:      store.EntityAccount,
				EntityID:        acc.ID,
				Meta:            map[string]any{"order_id": o.ID, "product_id": product.ID, "scope": product.Scope()},
			})
			if err != nil {
				return err
			}
		}

		grant = Grant{Order: o, Account: acc, Product: product, AlreadyGranted: !granted, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}

	published(ctx, s.publisher, s.log, grant.Order, from)
	if !grant.AlreadyGranted {
		metrics.AccessGrantedTotal.Inc()
		_ = s.publisher.Publish(ctx, events.StreamOrders, events.Event{
			Type: events.EventAccessGranted,
			Payload: map[string]any{
				"order_id":    grant.Order.ID,
				"account_id":  grant.Account.ID,
				"external_id": grant.Account.ExternalID,
				"product_id":  grant.Product.ID,
			},
		})
	}
	s.log.Info("payment confirmed",
		zap.Int64("order_id", grant.Order.ID),
		zap.Int64("admin_id", adminID),
		zap.Int64("external_id", accountExternalID),
		zap.Bool("already_granted", grant.AlreadyGranted),
	)
	return &grant, nil
}

// Deliver sends the product volumes to a chat, stopping at the first failure.
// Delivery runs after the grant is committed and never undoes it.
func (s *AccessService) Deliver(ctx context.Context, chatID int64, product *catalog.Product, volumes []catalog.Volume) error {
	for _, v := range volumes {
		if err := s.files.SendDocument(ctx, chatID, v.FilePath, "📕 "+v.Title); err != nil {
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			s.log.Error("delivery failed",
				zap.Int64("chat_id", chatID),
				zap.Int64("product_id", product.ID),
				zap.String("file", v.FilePath),
				zap.Error(err),
			)
			return &DeliveryError{Volume: v.Title, Err: err}
		}
		metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// DeliverGrant sends every volume of a freshly confirmed order to the buyer.
// A failure is published as EventDeliveryFailed so all admins learn about it;
// the buyer's own re-downloads go through Deliver and stay quiet.
func (s *AccessService) DeliverGrant(ctx context.Context, grant *Grant) error {
	chatID := grant.Account.ExternalID
	err := s.Deliver(ctx, chatID, grant.Product, grant.Product.Volumes)

	var derr *DeliveryError
	if errors.As(err, &derr) {
		perr := s.publisher.Publish(ctx, events.StreamOrders, events.Event{
			Type: events.EventDeliveryFailed,
			Payload: map[string]any{
				"event_id":   uuid.NewString(),
				"order_id":   grant.Order.ID,
				"chat_id":    chatID,
				"product_id": grant.Product.ID,
				"volume":     derr.Volume,
				"error":      derr.Err.Error(),
			},
		})
		if perr != nil {
			s.log.Warn("failed to publish delivery failure", zap.Int64("order_id", grant.Order.ID), zap.Error(perr))
		}
	}
	return err
}

// Volumes resolves what an owner may download: volume n (1-based), or every
// unlocked volume when n is 0.
func (s *AccessService) Volumes(ctx context.Context, actor Actor, productID int64, n int) (*catalog.Product, []catalog.Volume, error) {
	product, ok := s.catalog.Product(productID)
	if !ok {
		return nil, nil, fmt.Errorf("product %d: %w", productID, ErrUnknownProduct)
	}

	acc, err := s.store.GetAccountByExternalID(ctx, actor.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoAccess
	}
	if err != nil {
		return nil, nil, err
	}

	scope, err := s.scope(ctx, acc.ID, productID)
	if err != nil {
		return nil, nil, err
	}

	if n == 0 {
		return product, unlocked(product, scope), nil
	}
	v, ok := product.Volume(n)
	if !ok || n > scope {
		return nil, nil, fmt.Errorf("volume %d of product %d: %w", n, productID, ErrUnknownVolume)
	}
	return product, []catalog.Volume{v}, nil
}

// Owned lists the catalog products the actor holds access to.
func (s *AccessService) Owned(ctx context.Context, actor Actor) ([]OwnedProduct, error) {
	acc, err := s.store.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.ListAccess(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	var out []OwnedProduct
	for _, g := range grants {
		p, ok := s.catalog.Product(g.ProductID)
		if !ok {
			s.log.Warn("access to product missing from catalog", zap.Int64("product_id", g.ProductID))
			continue
		}
		out = append(out, OwnedProduct{Product: p, Access: g})
	}
	return out, nil
}

func (s *AccessService) scope(ctx context.Context, accountID, productID int64) (int, error) {
	grants, err := s.store.ListAccess(ctx, accountID)
	if err != nil {
		return 0, err
	}
	for _, g := range grants {
		if g.ProductID == productID {
			return g.Scope, nil
		}
	}
	return 0, ErrNoAccess
}

func unlocked(p *catalog.Product, scope int) []catalog.Volume {
	if scope > len(p.Volumes) {
		scope = len(p.Volumes)
	}
	return p.Volumes[:scope]
}
