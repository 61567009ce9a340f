package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/rbac"
)

func TestWSHub_SlowClientDoesNotBlockPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewMemoryBus()
	hub := NewWSHub("secret", rbac.NewAuthorizer([]int64{900}), bus, zap.NewNop())
	hub.Start(ctx)

	// ни у одного клиента нет writer-горутины, очереди только наполняются
	stalled := hub.register(new(websocket.Conn), 900)
	require.Equal(t, 1, hub.Connected())

	for i := 0; i < wsSendBuffer; i++ {
		require.NoError(t, bus.Publish(ctx, events.StreamOrders, events.Event{Type: events.EventOrderStatusChanged}))
	}
	assert.Len(t, stalled.send, wsSendBuffer)
	assert.Equal(t, 1, hub.Connected())

	late := hub.register(new(websocket.Conn), 901)

	// очередь stalled полна: публикация не ждёт, клиент отключается
	require.NoError(t, bus.Publish(ctx, events.StreamOrders, events.Event{
		Type:    events.EventAccessGranted,
		Payload: map[string]any{"order_id": 5},
	}))
	assert.Equal(t, 1, hub.Connected())

	for range stalled.send {
	}
	_, open := <-stalled.send
	assert.False(t, open, "dropped client queue is closed")

	require.Len(t, late.send, 1)
	var got events.Event
	require.NoError(t, json.Unmarshal(<-late.send, &got))
	assert.Equal(t, events.EventAccessGranted, got.Type)
}

func TestWSHub_Unregister(t *testing.T) {
	hub := NewWSHub("secret", rbac.NewAuthorizer(nil), events.NewMemoryBus(), zap.NewNop())
	conn := new(websocket.Conn)
	c := hub.register(conn, 1)

	hub.unregister(conn)
	hub.unregister(conn) // повторный вызов безопасен
	assert.Equal(t, 0, hub.Connected())
	_, open := <-c.send
	assert.False(t, open)
}
