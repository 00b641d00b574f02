// Package events carries domain events from the payment core to
// notification, audit and metrics consumers. Delivery is fire-and-forget:
// the core never blocks on a subscriber and a failing subscriber never
// propagates into the payment path.
package events

import (
	"log/slog"
	"sync"

	"kirapay/internal/domain"
)

type HandlerFunc func(event domain.Event) error

type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]HandlerFunc
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]HandlerFunc),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(eventType domain.EventType, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish dispatches asynchronously. Subscriber errors and panics are
// logged, never returned.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.wg.Add(1)
		go func(h HandlerFunc) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked",
						"event", event.Type,
						"panic", r)
				}
			}()
			if err := h(event); err != nil {
				b.logger.Error("event subscriber failed",
					"event", event.Type,
					"error", err)
			}
		}(handler)
	}
}

// Drain waits for in-flight deliveries; used on shutdown and in tests.
func (b *Bus) Drain() {
	b.wg.Wait()
}
