package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkautil "github.com/mkalra/crossarb/internal/kafka"
	"github.com/mkalra/crossarb/internal/logging"
)

// kafkaBus publishes through async writers (one per topic) and gives every
// subscriber a throwaway consumer group, so each one sees the full topic.
type kafkaBus struct {
	brokers []string
	buffer  int

	rootCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	writers map[string]*kafkago.Writer
	closed  bool
	wg      sync.WaitGroup
}

func NewKafka(brokers []string, buffer int) Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaBus{
		brokers: brokers,
		buffer:  buffer,
		rootCtx: ctx,
		cancel:  cancel,
		writers: make(map[string]*kafkago.Writer),
	}
}

func (b *kafkaBus) writer(topic string) (*kafkago.Writer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	w := b.writers[topic]
	if w == nil {
		w = kafkautil.NewAsyncWriter(b.brokers, topic, func(err error) {
			logging.Errorf("[bus] %s: async delivery: %v", topic, err)
		})
		b.writers[topic] = w
	}
	return w, nil
}

func (b *kafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	w, err := b.writer(topic)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafkago.Message{Value: payload})
}

func (b *kafkaBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	group := "crossarb-sub-" + uuid.NewString()
	reader := kafkautil.NewReader(b.brokers, topic, group)
	out := make(chan []byte, b.buffer)

	readCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.rootCtx.Done():
			cancel()
		case <-readCtx.Done():
		}
	}()

	go func() {
		defer b.wg.Done()
		defer close(out)
		defer reader.Close()
		defer cancel()
		for {
			msg, err := reader.ReadMessage(readCtx)
			if err != nil {
				if readCtx.Err() != nil {
					return
				}
				logging.Errorf("[bus] %s: read error: %v", topic, err)
				continue
			}
			select {
			case out <- msg.Value:
			case <-readCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *kafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	writers := b.writers
	b.writers = nil
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	var firstErr error
	for _, w := range writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
