package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digital-shop/bot/internal/models"
)

var ErrNotFound = errors.New("not found")

// Audit entity types
const (
	EntityOrder   = "order"
	EntityAccount = "account"
)

// OrderUpdate is a partial update of an order row. Nil fields and an empty
// Status are left unchanged.
type OrderUpdate struct {
	Status   models.OrderStatus
	ProofRef *string
	TxRef    *string
	PaidAt   *time.Time
}

type OrderFilter struct {
	Status    *models.OrderStatus
	AccountID *int64
	Limit     int
	Offset    int
}

// Store is the persistence contract shared by the Postgres and SQLite backends.
type Store interface {
	// --- Accounts ---
	GetOrCreateAccount(ctx context.Context, externalID int64, handle *string) (*models.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)

	// --- Orders ---
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetLastOpenOrder(ctx context.Context, accountID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, u OrderUpdate) error
	ListOrders(ctx context.Context, f OrderFilter) ([]models.OrderWithAccount, error)

	// --- Access ---
	GrantAccess(ctx context.Context, accountID, productID int64, scope int) (bool, error)
	HasAccess(ctx context.Context, accountID, productID int64) (bool, error)
	ListAccess(ctx context.Context, accountID int64) ([]models.Access, error)

	// --- Audit ---
	LogAudit(ctx context.Context, entry models.AuditLog) error
	ListAudit(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error)

	// WithTx runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error

	Close()
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, extra ...any) (*models.Order, error) {
	var (
		o      models.Order
		price  string
		status string
	)
	dest := []any{&o.ID, &o.AccountID, &o.ProductID, &price, &o.Currency, &status,
		&o.WalletAddress, &o.TxRef, &o.ProofRef, &o.CreatedAt, &o.PaidAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("order %d has malformed price %q: %w", o.ID, price, err)
	}
	o.Price = p
	o.Status = models.OrderStatus(status)
	return &o, nil
}

func scanOrderWithAccount(row rowScanner) (models.OrderWithAccount, error) {
	var (
		externalID int64
		handle     *string
	)
	o, err := scanOrder(row, &externalID, &handle)
	if err != nil {
		return models.OrderWithAccount{}, err
	}
	return models.OrderWithAccount{Order: *o, AccountExternalID: externalID, AccountHandle: handle}, nil
}

func encodeMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}

func decodeMeta(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
