package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/catalog"
	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/metrics"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/rbac"
	"github.com/digital-shop/bot/internal/session"
	"github.com/digital-shop/bot/internal/store"
)

// PaymentDetails is what the buyer needs to pay for a freshly created order.
type PaymentDetails struct {
	Order   *models.Order
	Product *catalog.Product
}

// Proof is a payment proof: an uploaded file or a transaction id.
type Proof struct {
	FileRef string
	IsPhoto bool
	TxRef   string
}

func (p Proof) kind() string {
	switch {
	case p.FileRef != "" && p.IsPhoto:
		return "photo"
	case p.FileRef != "":
		return "document"
	default:
		return "text"
	}
}

// ProofReceipt carries what admins must be told about a submitted proof.
type ProofReceipt struct {
	Order   *models.Order
	Product *catalog.Product
	Account *models.Account
	Proof   Proof
	Effects []models.SideEffect
}

type OrderService struct {
	store     store.Store
	sessions  session.Store
	catalog   *catalog.Catalog
	wallets   catalog.Wallets
	authz     *rbac.Authorizer
	access    *AccessService
	publisher events.Publisher
	log       *zap.Logger
}

func NewOrderService(
	st store.Store,
	sessions session.Store,
	cat *catalog.Catalog,
	wallets catalog.Wallets,
	authz *rbac.Authorizer,
	access *AccessService,
	publisher events.Publisher,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		store:     st,
		sessions:  sessions,
		catalog:   cat,
		wallets:   wallets,
		authz:     authz,
		access:    access,
		publisher: publisher,
		log:       log,
	}
}

// Touch records an interaction: creates the account or refreshes last_seen and handle.
func (s *OrderService) Touch(ctx context.Context, actor Actor) (*models.Account, error) {
	return s.store.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
}

// Reset drops the conversation back to idle without touching orders.
func (s *OrderService) Reset(ctx context.Context, actor Actor) error {
	return s.sessions.Clear(ctx, actor.ExternalID)
}

func (s *OrderService) Session(ctx context.Context, actor Actor) (session.Session, error) {
	return s.sessions.Get(ctx, actor.ExternalID)
}

func (s *OrderService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Currencies lists the currencies a buyer can pay with.
func (s *OrderService) Currencies() []string {
	return s.wallets.Available()
}

// StartPurchase enters the purchase flow for a product. Owners are refused
// with ErrAlreadyOwned.
func (s *OrderService) StartPurchase(ctx context.Context, actor Actor, productID int64) (*catalog.Product, error) {
	product, ok := s.catalog.Product(productID)
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, ErrUnknownProduct)
	}

	acc, err := s.Touch(ctx, actor)
	if err != nil {
		return nil, err
	}
	owned, err := s.store.HasAccess(ctx, acc.ID, productID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyOwned
	}

	err = s.sessions.Set(ctx, actor.ExternalID, session.Session{
		State:     session.StateChoosingCurrency,
		ProductID: productID,
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ChooseCurrency creates a pending order with a price and wallet snapshot
// for the product picked in StartPurchase.
func (s *OrderService) ChooseCurrency(ctx context.Context, actor Actor, currency string) (*PaymentDetails, error) {
	if !catalog.IsKnownCurrency(currency) {
		return nil, fmt.Errorf("%q: %w", currency, ErrUnknownCurrency)
	}
	wallet, ok := s.wallets.Address(currency)
	if !ok {
		return nil, fmt.Errorf("%q: %w", currency, ErrCurrencyUnavailable)
	}

	sess, err := s.sessions.Get(ctx, actor.ExternalID)
	if err != nil {
		return nil, err
	}
	if sess.State != session.StateChoosingCurrency || sess.ProductID == 0 {
		return nil, ErrNoProductSelected
	}
	product, ok := s.catalog.Product(sess.ProductID)
	if !ok {
		return nil, fmt.Errorf("product %d: %w", sess.ProductID, ErrUnknownProduct)
	}

	var order *models.Order
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
		if err != nil {
			return err
		}
		owned, err := tx.HasAccess(ctx, acc.ID, product.ID)
		if err != nil {
			return err
		}
		if owned {
			return ErrAlreadyOwned
		}

		if _, _, err := models.Transition(models.OrderStatusNone, models.EventCreate); err != nil {
			return err
		}
		order = &models.Order{
			AccountID:     acc.ID,
			ProductID:     product.ID,
			Price:         product.Price,
			Currency:      currency,
			WalletAddress: wallet,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.LogAudit(ctx, models.AuditLog{
			ActorExternalID: actor.ref(),
			ActorType:       models.ActorUser,
			Action:          fmt.Sprintf("order_%s", models.EventCreate),
			EntityType:      store.EntityOrder,
			EntityID:        order.ID,
			Meta: map[string]any{
				"product_id": product.ID,
				"price":      product.Price.String(),
				"currency":   currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues(currency).Inc()
	published(ctx, s.publisher, s.log, order, models.OrderStatusNone)
	s.log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("external_id", actor.ExternalID),
		zap.String("currency", currency),
		zap.String("price", order.Price.String()),
	)

	err = s.sessions.Set(ctx, actor.ExternalID, session.Session{
		State:     session.StateWaitingPayment,
		ProductID: product.ID,
		OrderID:   order.ID,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentDetails{Order: order, Product: product}, nil
}

// MarkPaid moves the buyer's open order from pending to waiting_proof.
// Repeating it on an order that already waits for proof is a no-op.
func (s *OrderService) MarkPaid(ctx context.Context, actor Actor) (*models.Order, error) {
	var (
		order *models.Order
		moved bool
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
		if err != nil {
			return err
		}
		order, err = lockLastOpenOrder(ctx, tx, acc.ID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusWaitingProof {
			return nil
		}
		_, err = transition(ctx, tx, order, models.EventMarkPaid, store.OrderUpdate{}, actor.ref(), models.ActorUser)
		moved = err == nil
		return err
	})
	if errors.Is(err, ErrNoOpenOrder) {
		_ = s.sessions.Clear(ctx, actor.ExternalID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if moved {
		published(ctx, s.publisher, s.log, order, models.OrderStatusPending)
	}

	err = s.sessions.Set(ctx, actor.ExternalID, session.Session{
		State:     session.StateWaitingProof,
		ProductID: order.ProductID,
		OrderID:   order.ID,
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SubmitProof attaches the proof to the buyer's open order and moves it to
// waiting_review. Without an open order the session is reset and
// ErrNoOpenOrder returned.
func (s *OrderService) SubmitProof(ctx context.Context, actor Actor, proof Proof) (*ProofReceipt, error) {
	proof.TxRef = strings.TrimSpace(proof.TxRef)
	if proof.FileRef == "" && proof.TxRef == "" {
		return nil, ErrEmptyProof
	}

	upd := store.OrderUpdate{}
	if proof.FileRef != "" {
		upd.ProofRef = &proof.FileRef
	} else {
		upd.TxRef = &proof.TxRef
	}

	var (
		receipt ProofReceipt
		from    models.OrderStatus
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
		if err != nil {
			return err
		}
		order, err := lockLastOpenOrder(ctx, tx, acc.ID)
		if err != nil {
			return err
		}
		from = order.Status
		effects, err := transition(ctx, tx, order, models.EventSubmitProof, upd, actor.ref(), models.ActorUser)
		if err != nil {
			return err
		}
		receipt = ProofReceipt{Order: order, Account: acc, Proof: proof, Effects: effects}
		return nil
	})
	if errors.Is(err, ErrNoOpenOrder) {
		_ = s.sessions.Clear(ctx, actor.ExternalID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	receipt.Product, _ = s.catalog.Product(receipt.Order.ProductID)
	metrics.ProofsSubmittedTotal.WithLabelValues(proof.kind()).Inc()
	published(ctx, s.publisher, s.log, receipt.Order, from)
	s.log.Info("proof submitted",
		zap.Int64("order_id", receipt.Order.ID),
		zap.Int64("external_id", actor.ExternalID),
		zap.String("kind", proof.kind()),
	)

	if err := s.sessions.Clear(ctx, actor.ExternalID); err != nil {
		s.log.Warn("failed to clear session", zap.Int64("external_id", actor.ExternalID), zap.Error(err))
	}
	return &receipt, nil
}

// Cancel cancels the buyer's open order if there is one and resets the
// conversation. It returns the canceled order or nil.
func (s *OrderService) Cancel(ctx context.Context, actor Actor) (*models.Order, error) {
	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetOrCreateAccount(ctx, actor.ExternalID, actor.Handle)
		if err != nil {
			return err
		}
		o, err := lockLastOpenOrder(ctx, tx, acc.ID)
		if errors.Is(err, ErrNoOpenOrder) {
			return nil
		}
		if err != nil {
			return err
		}
		from = o.Status
		if _, err := transition(ctx, tx, o, models.EventCancel, store.OrderUpdate{}, actor.ref(), models.ActorUser); err != nil {
			return err
		}
		order = o
		return nil
	})
	if clearErr := s.sessions.Clear(ctx, actor.ExternalID); clearErr != nil {
		s.log.Warn("failed to clear session", zap.Int64("external_id", actor.ExternalID), zap.Error(clearErr))
	}
	if err != nil {
		return nil, err
	}
	if order != nil {
		published(ctx, s.publisher, s.log, order, from)
		s.log.Info("order canceled by buyer", zap.Int64("order_id", order.ID))
	}
	return order, nil
}

// ConfirmPayment is the admin confirm command. Callers without
// PermConfirmOrder get ErrUnauthorized and nothing changes.
func (s *OrderService) ConfirmPayment(ctx context.Context, adminID, orderID, accountExternalID int64) (*Grant, error) {
	if !s.authz.Can(adminID, rbac.PermConfirmOrder) {
		return nil, ErrUnauthorized
	}
	grant, err := s.access.ConfirmAndGrant(ctx, adminID, orderID, accountExternalID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Clear(ctx, accountExternalID); err != nil {
		s.log.Warn("failed to clear session", zap.Int64("external_id", accountExternalID), zap.Error(err))
	}
	return grant, nil
}

// CancelOrder is the admin cancel of any open order.
func (s *OrderService) CancelOrder(ctx context.Context, adminID, orderID int64) (*models.OrderWithAccount, error) {
	if !s.authz.Can(adminID, rbac.PermCancelOrder) {
		return nil, ErrUnauthorized
	}

	var (
		order *models.Order
		from  models.OrderStatus
		buyer *models.Account
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return fmt.Errorf("order %d is %s: %w", o.ID, o.Status, ErrOrderClosed)
		}
		from = o.Status
		if _, err := transition(ctx, tx, o, models.EventCancel, store.OrderUpdate{}, &adminID, models.ActorAdmin); err != nil {
			return err
		}
		order = o
		buyer, err = tx.GetAccount(ctx, o.AccountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	published(ctx, s.publisher, s.log, order, from)
	s.log.Info("order canceled by admin", zap.Int64("order_id", order.ID), zap.Int64("admin_id", adminID))

	if err := s.sessions.Clear(ctx, buyer.ExternalID); err != nil {
		s.log.Warn("failed to clear session", zap.Int64("external_id", buyer.ExternalID), zap.Error(err))
	}
	return &models.OrderWithAccount{Order: *order, AccountExternalID: buyer.ExternalID, AccountHandle: buyer.Handle}, nil
}

// ListOrders is the admin order listing.
func (s *OrderService) ListOrders(ctx context.Context, adminID int64, f store.OrderFilter) ([]models.OrderWithAccount, error) {
	if !s.authz.Can(adminID, rbac.PermViewOrders) {
		return nil, ErrUnauthorized
	}
	return s.store.ListOrders(ctx, f)
}

func (s *OrderService) GetOrder(ctx context.Context, adminID, orderID int64) (*models.Order, error) {
	if !s.authz.Can(adminID, rbac.PermViewOrders) {
		return nil, ErrUnauthorized
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	return o, err
}

// OrderEvents returns the audit trail of an order.
func (s *OrderService) OrderEvents(ctx context.Context, adminID, orderID int64) ([]models.AuditLog, error) {
	if !s.authz.Can(adminID, rbac.PermViewOrders) {
		return nil, ErrUnauthorized
	}
	return s.store.ListAudit(ctx, store.EntityOrder, orderID)
}
