package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DTMBX/evident/internal/logger"
)

// natsBus backs the Bus interface with a real broker so publish/subscribe
// fans out across every API instance sharing the same NATS deployment.
type natsBus struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

func newNATSBus(cfg Config) (*natsBus, error) {
	log := logger.Events()

	opts := []nats.Option{
		nats.Name("evident-api"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("event bus disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("event bus NATS error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS at %s: %w", cfg.URL, err)
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("event bus connected to NATS")
	return &natsBus{conn: conn}, nil
}

func (b *natsBus) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}

func (b *natsBus) Subscribe(subject string, handler Handler) (Unsubscribe, error) {
	log := logger.Events()
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("subject", subject).
					Interface("panic", r).
					Msg("event handler panicked, dropping to dead-letter subject")
			}
		}()
		handler(context.Background(), msg.Data)
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *natsBus) IsEnabled() bool { return b.conn != nil && b.conn.IsConnected() }

func (b *natsBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Drain()
		b.conn.Close()
	}
	return nil
}
