package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id   INTEGER NOT NULL UNIQUE,
	handle        TEXT,
	created_at    TIMESTAMP NOT NULL,
	last_seen_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id      INTEGER NOT NULL REFERENCES accounts(id),
	product_id      INTEGER NOT NULL,
	price           TEXT NOT NULL,
	currency        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	wallet_address  TEXT NOT NULL,
	tx_ref          TEXT,
	proof_ref       TEXT,
	created_at      TIMESTAMP NOT NULL,
	paid_at         TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_account_status ON orders(account_id, status);

CREATE TABLE IF NOT EXISTS access (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  INTEGER NOT NULL REFERENCES accounts(id),
	product_id  INTEGER NOT NULL,
	scope       INTEGER NOT NULL,
	granted_at  TIMESTAMP NOT NULL,
	UNIQUE (account_id, product_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_external_id  INTEGER,
	actor_type         TEXT NOT NULL,
	action             TEXT NOT NULL,
	entity_type        TEXT NOT NULL,
	entity_id          INTEGER NOT NULL,
	meta               TEXT,
	created_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);
`

const sqliteOrderColumns = `o.id, o.account_id, o.product_id, o.price, o.currency, o.status,
	o.wallet_address, o.tx_ref, o.proof_ref, o.created_at, o.paid_at`

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the embedded backend. Write transactions are opened with
// BEGIN IMMEDIATE, so a transaction holds the database write lock from its
// first statement and GetOrderForUpdate needs no row lock.
type SQLiteStore struct {
	db  *sql.DB // nil when bound to a transaction
	q   sqlQuerier
	now func() time.Time
}

func NewSQLiteStore(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	log.Info("opening sqlite database", zap.String("file", path))
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&SQLiteStore{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrCreateAccount(ctx context.Context, externalID int64, handle *string) (*models.Account, error) {
	now := s.now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (external_id, handle, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			handle = COALESCE(excluded.handle, accounts.handle),
			last_seen_at = excluded.last_seen_at
	`, externalID, handle, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert account %d: %w", externalID, err)
	}
	return s.GetAccountByExternalID(ctx, externalID)
}

func (s *SQLiteStore) GetAccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	var a models.Account
	err := s.q.QueryRowContext(ctx, `
		SELECT id, external_id, handle, created_at, last_seen_at
		FROM accounts WHERE external_id = ?
	`, externalID).Scan(&a.ID, &a.ExternalID, &a.Handle, &a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return nil, sqlErr(err, "get account %d", externalID)
	}
	return &a, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := s.q.QueryRowContext(ctx, `
		SELECT id, external_id, handle, created_at, last_seen_at
		FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.ExternalID, &a.Handle, &a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return nil, sqlErr(err, "get account #%d", id)
	}
	return &a, nil
}

func (s *SQLiteStore) CreateOrder(ctx context.Context, o *models.Order) error {
	o.Status = models.OrderStatusPending
	o.CreatedAt = s.now()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO orders (account_id, product_id, price, currency, status, wallet_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.AccountID, o.ProductID, o.Price.String(), o.Currency, string(o.Status), o.WalletAddress, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.q.QueryRowContext(ctx, `SELECT `+sqliteOrderColumns+` FROM orders o WHERE o.id = ?`, id))
	if err != nil {
		return nil, sqlErr(err, "get order %d", id)
	}
	return o, nil
}

func (s *SQLiteStore) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *SQLiteStore) GetLastOpenOrder(ctx context.Context, accountID int64) (*models.Order, error) {
	o, err := scanOrder(s.q.QueryRowContext(ctx, `
		SELECT `+sqliteOrderColumns+`
		FROM orders o
		WHERE o.account_id = ? AND o.status IN ('pending', 'waiting_proof', 'waiting_review')
		ORDER BY o.id DESC
		LIMIT 1
	`, accountID))
	if err != nil {
		return nil, sqlErr(err, "last open order of account %d", accountID)
	}
	return o, nil
}

func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id int64, u OrderUpdate) error {
	var paidAt any
	if u.PaidAt != nil {
		paidAt = u.PaidAt.UTC()
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders SET
			status = COALESCE(NULLIF(?, ''), status),
			proof_ref = COALESCE(?, proof_ref),
			tx_ref = COALESCE(?, tx_ref),
			paid_at = COALESCE(?, paid_at)
		WHERE id = ?
	`, string(u.Status), u.ProofRef, u.TxRef, paidAt, id)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context, f OrderFilter) ([]models.OrderWithAccount, error) {
	query := `SELECT ` + sqliteOrderColumns + `, a.external_id, a.handle
		FROM orders o
		JOIN accounts a ON a.id = o.account_id`
	args := []any{}
	where := []string{}

	if f.Status != nil {
		where = append(where, "o.status = ?")
		args = append(args, string(*f.Status))
	}
	if f.AccountID != nil {
		where = append(where, "o.account_id = ?")
		args = append(args, *f.AccountID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.id DESC LIMIT ? OFFSET ?"
	args = append(args, listLimit(f.Limit), f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OrderWithAccount
	for rows.Next() {
		o, err := scanOrderWithAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) GrantAccess(ctx context.Context, accountID, productID int64, scope int) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO access (account_id, product_id, scope, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, product_id) DO NOTHING
	`, accountID, productID, scope, s.now())
	if err != nil {
		return false, fmt.Errorf("grant access %d/%d: %w", accountID, productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grant access %d/%d: %w", accountID, productID, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) HasAccess(ctx context.Context, accountID, productID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM access WHERE account_id = ? AND product_id = ?)",
		accountID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access %d/%d: %w", accountID, productID, err)
	}
	return exists, nil
}

func (s *SQLiteStore) ListAccess(ctx context.Context, accountID int64) ([]models.Access, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, product_id, scope, granted_at
		FROM access WHERE account_id = ?
		ORDER BY id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list access %d: %w", accountID, err)
	}
	defer rows.Close()

	var out []models.Access
	for rows.Next() {
		var a models.Access
		if err := rows.Scan(&a.ID, &a.AccountID, &a.ProductID, &a.Scope, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("list access %d: %w", accountID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LogAudit(ctx context.Context, entry models.AuditLog) error {
	meta, err := encodeMeta(entry.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO audit_log (actor_external_id, actor_type, action, entity_type, entity_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ActorExternalID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, nullableText(meta), s.now())
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor_external_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log WHERE entity_type = ? AND entity_id = ?
		ORDER BY id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var (
			l    models.AuditLog
			meta sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ActorExternalID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &meta, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		if meta.Valid {
			if l.Meta, err = decodeMeta([]byte(meta.String)); err != nil {
				return nil, fmt.Errorf("decode audit meta %d: %w", l.ID, err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func sqlErr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
