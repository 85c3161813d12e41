package bus

import (
	"context"
	"sync"

	"github.com/mkalra/crossarb/internal/logging"
)

// inMemoryBus fans every publish out to per-subscriber bounded buffers.
// When a buffer is full the oldest payload is dropped, so a stalled
// subscriber loses history instead of stalling the publisher.
type inMemoryBus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
}

type memSub struct {
	ch chan []byte
}

func NewInMemory(buffer int) Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &inMemoryBus{buffer: buffer, subs: make(map[string][]*memSub)}
}

func (b *inMemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			// Full: evict the oldest entry and retry once. A racing
			// reader can win the eviction, then the retry drops the
			// new payload instead, which is still bounded loss.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- payload:
			default:
				logging.Debugf("[bus] %s: subscriber buffer full, payload dropped", topic)
			}
		}
	}
	return nil
}

func (b *inMemoryBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &memSub{ch: make(chan []byte, b.buffer)}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(topic, sub)
	}()
	return sub.ch, nil
}

func (b *inMemoryBus) unsubscribe(topic string, sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return // Close already owns the channels
	}
	list := b.subs[topic]
	for i, s := range list {
		if s == sub {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

func (b *inMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
	}
	b.subs = nil
	return nil
}
