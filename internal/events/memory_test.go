package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Event, 4)
	if err := bus.Subscribe(ctx, StreamOrders, func(e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ev := Event{Type: EventOrderStatusChanged, Payload: map[string]any{"order_id": int64(1)}}
	if err := bus.Publish(context.Background(), StreamOrders, ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	_ = bus.Publish(context.Background(), "other", Event{Type: "ignored"})

	select {
	case e := <-got:
		if e.Type != EventOrderStatusChanged {
			t.Errorf("event type = %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	if len(got) != 0 {
		t.Errorf("unexpected extra events: %d", len(got))
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for {
		bus.mu.RLock()
		n := len(bus.handlers[StreamOrders])
		bus.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("handler not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = bus.Publish(context.Background(), StreamOrders, ev)
	if len(got) != 0 {
		t.Error("canceled subscriber still receives events")
	}
}

func TestRedisPubSub(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := "test:" + t.Name()
	got := make(chan Event, 1)
	sub := NewRedisSubscriber(rdb, zap.NewNop())
	if err := sub.Subscribe(ctx, stream, func(e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	pub := NewRedisPublisher(rdb, zap.NewNop())
	if err := pub.Publish(ctx, stream, Event{Type: EventAccessGranted, Payload: map[string]any{"order_id": 7}}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-got:
		if e.Type != EventAccessGranted || e.Payload["order_id"] != float64(7) {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper()
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	if ok, _ := d.Claim(ctx, "a", time.Minute); !ok {
		t.Fatal("first claim must win")
	}
	if ok, _ := d.Claim(ctx, "a", time.Minute); ok {
		t.Fatal("second claim must lose")
	}
	if ok, _ := d.Claim(ctx, "b", time.Minute); !ok {
		t.Fatal("other key must win")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := d.Claim(ctx, "a", time.Minute); !ok {
		t.Error("claim must be free again after ttl")
	}
}
