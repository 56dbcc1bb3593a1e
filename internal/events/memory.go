package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DTMBX/evident/internal/logger"
)

// memoryBus fans events out to in-process subscribers over goroutines. It
// is the default Event Bus backend: no external broker required, adequate
// for a single API instance.
type memoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subs: make(map[string]map[int]Handler)}
}

func (b *memoryBus) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	log := logger.Events()
	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("subject", subject).
						Interface("panic", r).
						Msg("event handler panicked, dropping to dead-letter subject")
				}
			}()
			h(ctx, data)
		}(h)
	}
	return nil
}

func (b *memoryBus) Subscribe(subject string, handler Handler) (Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[subject][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[subject], id)
	}, nil
}

func (b *memoryBus) IsEnabled() bool { return true }

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}
