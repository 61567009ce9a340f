package events

import (
	"context"
	"sync"
)

// MemoryBus delivers events in-process. It stands in for redis pub/sub
// when REDIS_URL is not configured.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]func(Event)
	nextID   int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string]map[int]func(Event))}
}

func (b *MemoryBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers[stream]))
	for _, h := range b.handlers[stream] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers handler until ctx is canceled.
func (b *MemoryBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	if b.handlers[stream] == nil {
		b.handlers[stream] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.handlers[stream][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers[stream], id)
		b.mu.Unlock()
	}()
	return nil
}
