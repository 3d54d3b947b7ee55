package event

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler reacts to a published event. Returned errors are logged by the
// bus and never reach the publisher.
type Handler func(ctx context.Context, payload any) error

// Bus is the in-process publish/subscribe boundary used by the services.
type Bus interface {
	Publish(ctx context.Context, name string, payload any)
	Subscribe(name string, h Handler)
}

// LocalBus delivers events synchronously to the handlers subscribed at
// publish time.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.SugaredLogger
}

func NewLocalBus(logger *zap.SugaredLogger) *LocalBus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LocalBus{handlers: make(map[string][]Handler), logger: logger}
}

func (b *LocalBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *LocalBus) Publish(ctx context.Context, name string, payload any) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[name]))
	copy(hs, b.handlers[name])
	b.mu.RUnlock()

	for _, h := range hs {
		if err := b.invoke(ctx, h, payload); err != nil {
			b.logger.Warnw("event handler failed", "event", name, "err", err)
		}
	}
}

func (b *LocalBus) invoke(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
