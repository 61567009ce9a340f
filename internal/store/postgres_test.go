package store

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/db"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/migrations"
)

// pgPool is shared by every Postgres test; nil when no database is available.
var pgPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()

	cleanup, err := setupPostgres()
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres tests disabled: %v\n", err)
	}
	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

// setupPostgres uses TEST_POSTGRES_DSN when set, otherwise starts a
// throwaway container. Short mode skips the container.
func setupPostgres() (func(), error) {
	ctx := context.Background()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	var container *postgres.PostgresContainer
	if dsn == "" {
		if testing.Short() {
			return nil, errors.New("short mode")
		}
		c, err := postgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:16-alpine"),
			postgres.WithDatabase("shop_test"),
			postgres.WithUsername("shop"),
			postgres.WithPassword("shop"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("start container: %w", err)
		}
		container = c
		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = c.Terminate(ctx)
			return nil, err
		}
	}

	terminate := func() {
		if container != nil {
			_ = container.Terminate(context.Background())
		}
	}

	pool, err := db.NewPostgresPool(ctx, dsn, zap.NewNop())
	if err != nil {
		terminate()
		return nil, err
	}
	if err := db.RunMigrations(ctx, pool, migrations.FS, zap.NewNop()); err != nil {
		pool.Close()
		terminate()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pgPool = pool
	return func() {
		pool.Close()
		terminate()
	}, nil
}

// newPostgresTestStore returns a store over the shared pool with all tables emptied.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if pgPool == nil {
		t.Skip("postgres is not available")
	}
	_, err := pgPool.Exec(context.Background(),
		`TRUNCATE audit_log, access, orders, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewPostgresStore(pgPool)
}

func TestPostgres_GetOrCreateAccount(t *testing.T) {
	testGetOrCreateAccount(t, newPostgresTestStore(t))
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	testOrderLifecycle(t, newPostgresTestStore(t))
}

func TestPostgres_GetLastOpenOrder(t *testing.T) {
	testGetLastOpenOrder(t, newPostgresTestStore(t))
}

func TestPostgres_GrantAccess(t *testing.T) {
	testGrantAccess(t, newPostgresTestStore(t))
}

func TestPostgres_GrantAccessConcurrent(t *testing.T) {
	testGrantAccessConcurrent(t, newPostgresTestStore(t))
}

func TestPostgres_ListOrders(t *testing.T) {
	testListOrders(t, newPostgresTestStore(t))
}

func TestPostgres_Audit(t *testing.T) {
	testAudit(t, newPostgresTestStore(t))
}

func TestPostgres_WithTxRollback(t *testing.T) {
	testWithTxRollback(t, newPostgresTestStore(t))
}

func TestPostgres_ListOrdersPaging(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, createOrder(t, s, acc.ID).ID)
	}

	status := models.OrderStatusPending
	page, err := s.ListOrders(ctx, OrderFilter{Status: &status, AccountID: &acc.ID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	// newest first
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}

// второй GetOrderForUpdate ждёт коммита первой транзакции и видит её результат
func TestPostgres_GetOrderForUpdateBlocks(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)
	o := createOrder(t, s, acc.ID)

	locked := make(chan struct{})
	seen := make(chan models.OrderStatus, 1)
	errs := make(chan error, 2)

	go func() {
		errs <- s.WithTx(ctx, func(tx Store) error {
			if _, err := tx.GetOrderForUpdate(ctx, o.ID); err != nil {
				return err
			}
			close(locked)
			time.Sleep(200 * time.Millisecond)
			return tx.UpdateOrderStatus(ctx, o.ID, OrderUpdate{Status: models.OrderStatusCanceled})
		})
	}()

	<-locked
	go func() {
		errs <- s.WithTx(ctx, func(tx Store) error {
			got, err := tx.GetOrderForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			seen <- got.Status
			return nil
		})
	}()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, models.OrderStatusCanceled, <-seen)

	_, err = s.GetOrderForUpdate(ctx, 4242)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgres_UpdateOrderStatusKeepsStatus(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)
	o := createOrder(t, s, acc.ID)

	// пустой Status не трогает статус
	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, OrderUpdate{TxRef: strPtr("0xabc")}))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	require.NotNil(t, got.TxRef)
	assert.Equal(t, "0xabc", *got.TxRef)
	assert.Nil(t, got.PaidAt)
}
