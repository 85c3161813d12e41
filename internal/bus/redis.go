package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisBus bridges Redis Pub/Sub channels to Go channels. Publishes land on
// the server, so a slow local subscriber never touches the publisher.
type redisBus struct {
	client *redis.Client
	prefix string
	buffer int

	rootCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewRedis(ctx context.Context, url string, buffer int) (Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("bus: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: redis ping: %w", err)
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &redisBus{
		client:  client,
		prefix:  "crossarb:bus:",
		buffer:  buffer,
		rootCtx: rootCtx,
		cancel:  cancel,
	}, nil
}

func (b *redisBus) channel(topic string) string { return b.prefix + topic }

func (b *redisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("bus: redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *redisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	pubsub := b.client.Subscribe(ctx, b.channel(topic))

	// Receive the confirmation so a dead server fails here, not silently.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("bus: redis subscribe %s: %w", topic, err)
	}

	out := make(chan []byte, b.buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.rootCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-b.rootCtx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *redisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *redisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	return b.client.Close()
}
