package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digital-shop/bot/internal/models"
)

const pgOrderColumns = `o.id, o.account_id, o.product_id, o.price::text, o.currency, o.status,
		o.wallet_address, o.tx_ref, o.proof_ref, o.created_at, o.paid_at`

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    pgQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, externalID int64, handle *string) (*models.Account, error) {
	var a models.Account
	err := s.q.QueryRow(ctx, `
		INSERT INTO accounts (external_id, handle)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = COALESCE(EXCLUDED.handle, accounts.handle),
			last_seen_at = now()
		RETURNING id, external_id, handle, created_at, last_seen_at
	`, externalID, handle).Scan(&a.ID, &a.ExternalID, &a.Handle, &a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("upsert account %d: %w", externalID, err)
	}
	return &a, nil
}

func (s *PostgresStore) GetAccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	var a models.Account
	err := s.q.QueryRow(ctx, `
		SELECT id, external_id, handle, created_at, last_seen_at
		FROM accounts WHERE external_id = $1
	`, externalID).Scan(&a.ID, &a.ExternalID, &a.Handle, &a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return nil, pgErr(err, "get account %d", externalID)
	}
	return &a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := s.q.QueryRow(ctx, `
		SELECT id, external_id, handle, created_at, last_seen_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.ExternalID, &a.Handle, &a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return nil, pgErr(err, "get account #%d", id)
	}
	return &a, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	o.Status = models.OrderStatusPending
	err := s.q.QueryRow(ctx, `
		INSERT INTO orders (account_id, product_id, price, currency, status, wallet_address)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id, created_at
	`, o.AccountID, o.ProductID, o.Price.String(), o.Currency, string(o.Status), o.WalletAddress,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM orders o WHERE o.id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "get order %d", id)
	}
	return o, nil
}

func (s *PostgresStore) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, pgErr(err, "lock order %d", id)
	}
	return o, nil
}

func (s *PostgresStore) GetLastOpenOrder(ctx context.Context, accountID int64) (*models.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, `
		SELECT `+pgOrderColumns+`
		FROM orders o
		WHERE o.account_id = $1 AND o.status IN ('pending', 'waiting_proof', 'waiting_review')
		ORDER BY o.id DESC
		LIMIT 1
	`, accountID))
	if err != nil {
		return nil, pgErr(err, "last open order of account %d", accountID)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id int64, u OrderUpdate) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE orders SET
			status = COALESCE(NULLIF($2, ''), status),
			proof_ref = COALESCE($3, proof_ref),
			tx_ref = COALESCE($4, tx_ref),
			paid_at = COALESCE($5, paid_at)
		WHERE id = $1
	`, id, string(u.Status), u.ProofRef, u.TxRef, u.PaidAt)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]models.OrderWithAccount, error) {
	query := `SELECT ` + pgOrderColumns + `, a.external_id, a.handle
		FROM orders o
		JOIN accounts a ON a.id = o.account_id`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("o.status = $%d", argIdx))
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.AccountID != nil {
		where = append(where, fmt.Sprintf("o.account_id = $%d", argIdx))
		args = append(args, *f.AccountID)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY o.id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, listLimit(f.Limit), f.Offset)

	rows, err := s.q.Query(ctx, query, args...)
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

func (s *PostgresStore) GrantAccess(ctx context.Context, accountID, productID int64, scope int) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO access (account_id, product_id, scope)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, product_id) DO NOTHING
	`, accountID, productID, scope)
	if err != nil {
		return false, fmt.Errorf("grant access %d/%d: %w", accountID, productID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) HasAccess(ctx context.Context, accountID, productID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM access WHERE account_id = $1 AND product_id = $2)",
		accountID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access %d/%d: %w", accountID, productID, err)
	}
	return exists, nil
}

func (s *PostgresStore) ListAccess(ctx context.Context, accountID int64) ([]models.Access, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, account_id, product_id, scope, granted_at
		FROM access WHERE account_id = $1
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

func (s *PostgresStore) LogAudit(ctx context.Context, entry models.AuditLog) error {
	meta, err := encodeMeta(entry.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO audit_log (actor_external_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, entry.ActorExternalID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, nullableText(meta))
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, actor_external_id, actor_type, action, entity_type, entity_id, meta::text, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2
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
			meta *string
		)
		if err := rows.Scan(&l.ID, &l.ActorExternalID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &meta, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		if meta != nil {
			if l.Meta, err = decodeMeta([]byte(*meta)); err != nil {
				return nil, fmt.Errorf("decode audit meta %d: %w", l.ID, err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullableText(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

func pgErr(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
