package events

import (
	"context"
	"fmt"
)

// Backend selects the Event Bus transport.
type Backend string

const (
	// BackendMemory fans events out in-process only. The default, and the
	// only option a single-instance deployment needs.
	BackendMemory Backend = "memory"
	// BackendNATS backs the same interface with a real broker so multiple
	// API instances share one event stream.
	BackendNATS Backend = "nats"
)

// Config configures the Event Bus backend.
type Config struct {
	Backend  Backend
	URL      string
	User     string
	Password string
}

// Handler receives the raw JSON payload of an event. Handlers run on their
// own goroutine; a panic inside one is recovered and logged, never
// propagated to the publisher.
type Handler func(ctx context.Context, data []byte)

// Unsubscribe detaches a previously registered handler.
type Unsubscribe func()

// Bus is the Event Bus contract: publish a JSON-serializable event under a
// subject, and subscribe handlers to a subject. Every implementation must
// be safe for concurrent use.
type Bus interface {
	Publish(ctx context.Context, subject string, event any) error
	Subscribe(subject string, handler Handler) (Unsubscribe, error)
	IsEnabled() bool
	Close() error
}

// New constructs a Bus for the configured backend. An empty Backend
// defaults to BackendMemory.
func New(cfg Config) (Bus, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return newMemoryBus(), nil
	case BackendNATS:
		return newNATSBus(cfg)
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
}
