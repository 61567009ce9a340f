package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/telegram"
)

type fakeUpdater struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	offsets []int64
	calls   int
}

func (f *fakeUpdater) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.calls++
	if f.calls == 1 {
		f.mu.Unlock()
		return nil, errors.New("network down")
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingDispatcher struct {
	mu   sync.Mutex
	seen map[int64]bool
	done chan struct{}
	want int
}

func (d *countingDispatcher) Dispatch(_ context.Context, u telegram.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[u.UpdateID] = true
	if len(d.seen) == d.want {
		close(d.done)
	}
}

func TestPoller(t *testing.T) {
	up := &fakeUpdater{batches: [][]telegram.Update{
		{{UpdateID: 10}, {UpdateID: 11}},
		{{UpdateID: 12}},
	}}
	d := &countingDispatcher{seen: map[int64]bool{}, done: make(chan struct{}), want: 3}

	p := NewPoller(up, d, time.Second, 2, zap.NewNop())
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("updates were not dispatched")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	// 0 (ошибка), 0, 12, 13
	want := []int64{0, 0, 12, 13}
	if len(up.offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", up.offsets, want)
	}
	for i := range want {
		if up.offsets[i] != want[i] {
			t.Errorf("offsets = %v, want %v", up.offsets, want)
			break
		}
	}
}
