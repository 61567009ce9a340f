package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "shop.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLite_GetOrCreateAccount(t *testing.T)    { testGetOrCreateAccount(t, newTestStore(t)) }
func TestSQLite_OrderLifecycle(t *testing.T)        { testOrderLifecycle(t, newTestStore(t)) }
func TestSQLite_GetLastOpenOrder(t *testing.T)      { testGetLastOpenOrder(t, newTestStore(t)) }
func TestSQLite_GrantAccess(t *testing.T)           { testGrantAccess(t, newTestStore(t)) }
func TestSQLite_GrantAccessConcurrent(t *testing.T) { testGrantAccessConcurrent(t, newTestStore(t)) }
func TestSQLite_ListOrders(t *testing.T)            { testListOrders(t, newTestStore(t)) }
func TestSQLite_Audit(t *testing.T)                 { testAudit(t, newTestStore(t)) }
func TestSQLite_WithTxRollback(t *testing.T)        { testWithTxRollback(t, newTestStore(t)) }

func strPtr(s string) *string { return &s }

func createOrder(t *testing.T, s Store, accountID int64) *models.Order {
	t.Helper()
	o := &models.Order{
		AccountID:     accountID,
		ProductID:     1,
		Price:         decimal.RequireFromString("200.5"),
		Currency:      "BTC",
		WalletAddress: "bc1qexample",
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
	return o
}

func testGetOrCreateAccount(t *testing.T, s Store) {
	ctx := context.Background()

	a1, err := s.GetOrCreateAccount(ctx, 100, strPtr("alice"))
	require.NoError(t, err)
	require.NotNil(t, a1.Handle)
	assert.Equal(t, "alice", *a1.Handle)

	time.Sleep(5 * time.Millisecond)

	// nil handle keeps the stored one
	a2, err := s.GetOrCreateAccount(ctx, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
	require.NotNil(t, a2.Handle)
	assert.Equal(t, "alice", *a2.Handle)
	assert.True(t, a2.LastSeenAt.After(a1.LastSeenAt), "last_seen_at must be refreshed")

	a3, err := s.GetOrCreateAccount(ctx, 100, strPtr("alice_new"))
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a3.ID)
	assert.Equal(t, "alice_new", *a3.Handle)

	other, err := s.GetOrCreateAccount(ctx, 200, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, other.ID)
	assert.Nil(t, other.Handle)

	_, err = s.GetAccountByExternalID(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func testOrderLifecycle(t *testing.T, s Store) {
	ctx := context.Background()

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)

	o := createOrder(t, s, acc.ID)
	assert.NotZero(t, o.ID)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("200.5")))
	assert.Equal(t, "bc1qexample", got.WalletAddress)
	assert.Nil(t, got.ProofRef)
	assert.Nil(t, got.PaidAt)

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, OrderUpdate{Status: models.OrderStatusWaitingProof}))
	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, OrderUpdate{
		Status:   models.OrderStatusWaitingReview,
		ProofRef: strPtr("photo-file-id"),
	}))

	got, err = s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusWaitingReview, got.Status)
	require.NotNil(t, got.ProofRef)
	assert.Equal(t, "photo-file-id", *got.ProofRef)

	paidAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, OrderUpdate{Status: models.OrderStatusPaid, PaidAt: &paidAt}))

	got, err = s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
	// unset fields stay as they were
	require.NotNil(t, got.ProofRef)
	assert.Equal(t, "photo-file-id", *got.ProofRef)

	err = s.UpdateOrderStatus(ctx, 4242, OrderUpdate{Status: models.OrderStatusPaid})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetOrder(ctx, 4242)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func testGetLastOpenOrder(t *testing.T, s Store) {
	ctx := context.Background()

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)

	_, err = s.GetLastOpenOrder(ctx, acc.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	first := createOrder(t, s, acc.ID)
	second := createOrder(t, s, acc.ID)

	got, err := s.GetLastOpenOrder(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	require.NoError(t, s.UpdateOrderStatus(ctx, second.ID, OrderUpdate{Status: models.OrderStatusCanceled}))
	got, err = s.GetLastOpenOrder(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	require.NoError(t, s.UpdateOrderStatus(ctx, first.ID, OrderUpdate{Status: models.OrderStatusPaid}))
	_, err = s.GetLastOpenOrder(ctx, acc.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "terminal orders are never open")
}

func testGrantAccess(t *testing.T, s Store) {
	ctx := context.Background()

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)

	has, err := s.HasAccess(ctx, acc.ID, 1)
	require.NoError(t, err)
	assert.False(t, has)

	granted, err := s.GrantAccess(ctx, acc.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = s.GrantAccess(ctx, acc.ID, 1, 2)
	require.NoError(t, err)
	assert.False(t, granted, "second grant is a no-op")

	has, err = s.HasAccess(ctx, acc.ID, 1)
	require.NoError(t, err)
	assert.True(t, has)

	list, err := s.ListAccess(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Scope)
}

func testGrantAccessConcurrent(t *testing.T, s Store) {
	ctx := context.Background()

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.GrantAccess(ctx, acc.ID, 7, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	list, err := s.ListAccess(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testListOrders(t *testing.T, s Store) {
	ctx := context.Background()

	alice, err := s.GetOrCreateAccount(ctx, 1, strPtr("alice"))
	require.NoError(t, err)
	bob, err := s.GetOrCreateAccount(ctx, 2, nil)
	require.NoError(t, err)

	a := createOrder(t, s, alice.ID)
	createOrder(t, s, bob.ID)
	require.NoError(t, s.UpdateOrderStatus(ctx, a.ID, OrderUpdate{Status: models.OrderStatusWaitingProof}))

	all, err := s.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.OrderStatusWaitingProof
	filtered, err := s.ListOrders(ctx, OrderFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, a.ID, filtered[0].ID)
	assert.Equal(t, int64(1), filtered[0].AccountExternalID)
	require.NotNil(t, filtered[0].AccountHandle)
	assert.Equal(t, "alice", *filtered[0].AccountHandle)

	byAccount, err := s.ListOrders(ctx, OrderFilter{AccountID: &bob.ID})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, int64(2), byAccount[0].AccountExternalID)
}

func testAudit(t *testing.T, s Store) {
	ctx := context.Background()

	actor := int64(10)
	require.NoError(t, s.LogAudit(ctx, models.AuditLog{
		ActorExternalID: &actor,
		ActorType:       models.ActorUser,
		Action:          "order_created",
		EntityType:      EntityOrder,
		EntityID:        5,
		Meta:            map[string]any{"currency": "BTC"},
	}))
	require.NoError(t, s.LogAudit(ctx, models.AuditLog{
		ActorType:  models.ActorSystem,
		Action:     "order_canceled",
		EntityType: EntityOrder,
		EntityID:   5,
	}))

	logs, err := s.ListAudit(ctx, EntityOrder, 5)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "order_created", logs[0].Action)
	assert.Equal(t, "BTC", logs[0].Meta["currency"])
	require.NotNil(t, logs[0].ActorExternalID)
	assert.Equal(t, actor, *logs[0].ActorExternalID)
	assert.Nil(t, logs[1].ActorExternalID)
	assert.Nil(t, logs[1].Meta)
}

func testWithTxRollback(t *testing.T, s Store) {
	ctx := context.Background()

	acc, err := s.GetOrCreateAccount(ctx, 1, nil)
	require.NoError(t, err)
	o := createOrder(t, s, acc.ID)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx Store) error {
		locked, err := tx.GetOrderForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, locked.ID, OrderUpdate{Status: models.OrderStatusPaid}); err != nil {
			return err
		}
		if _, err := tx.GrantAccess(ctx, acc.ID, 1, 2); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status, "rolled back")
	has, err := s.HasAccess(ctx, acc.ID, 1)
	require.NoError(t, err)
	assert.False(t, has)

	err = s.WithTx(ctx, func(tx Store) error {
		return tx.UpdateOrderStatus(ctx, o.ID, OrderUpdate{Status: models.OrderStatusCanceled})
	})
	require.NoError(t, err)
	got, err = s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, got.Status)
}
