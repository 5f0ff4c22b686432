package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS publishes and subscribes on one connection. The connection does not
// echo, so an instance never receives the events it published itself.
type NATS struct {
	conn *nats.Conn
}

// Connect connects to NATS with automatic reconnection. Extra options are
// appended to the defaults.
func Connect(url string, logger *slog.Logger, opts ...nats.Option) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := []nats.Option{
		nats.Name("commentsd"),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATS{conn: nc}, nil
}

// Publish sends the JSON encoding of event on topic.
func (n *NATS) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := n.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel that receives raw event payloads for topic
// (wildcards like TopicAll are supported). Messages are dropped while the
// channel is full.
func (n *NATS) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg.Data:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before events published on
	// other connections are routed to it.
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Flush waits until the server has processed every published message.
func (n *NATS) Flush() error {
	return n.conn.Flush()
}

// Close drains the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
