package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/telegram"
)

// Updater is the long-polling source of updates.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Dispatcher handles one update.
type Dispatcher interface {
	Dispatch(ctx context.Context, u telegram.Update)
}

// Poller fetches updates and hands each to its own goroutine, at most
// maxConcurrent at a time.
type Poller struct {
	updater    Updater
	dispatcher Dispatcher
	timeout    time.Duration
	retryDelay time.Duration
	sem        chan struct{}
	log        *zap.Logger
}

func NewPoller(updater Updater, dispatcher Dispatcher, timeout time.Duration, maxConcurrent int, log *zap.Logger) *Poller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Poller{
		updater:    updater,
		dispatcher: dispatcher,
		timeout:    timeout,
		retryDelay: 3 * time.Second,
		sem:        make(chan struct{}, maxConcurrent),
		log:        log,
	}
}

// Run polls until ctx is canceled, then waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) {
	var (
		wg     sync.WaitGroup
		offset int64
	)
	defer wg.Wait()

	p.log.Info("long polling started", zap.Duration("timeout", p.timeout), zap.Int("max_concurrent", cap(p.sem)))
	for {
		if ctx.Err() != nil {
			p.log.Info("long polling stopped")
			return
		}

		updates, err := p.updater.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(u telegram.Update) {
				defer func() {
					<-p.sem
					wg.Done()
				}()
				p.dispatcher.Dispatch(ctx, u)
			}(u)
		}
	}
}
