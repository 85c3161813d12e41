// Package bus is the process's pub/sub seam. Every backend gives each
// subscriber its own cursor (broadcast), delivers at least once to connected
// subscribers, and never lets a slow consumer block a publisher.
package bus

import (
	"context"
	"errors"
)

// ErrClosed reports a publish or subscribe against a closed bus.
var ErrClosed = errors.New("bus: closed")

type Bus interface {
	// Publish is fire-and-forget: it may buffer or drop, it never blocks
	// on a subscriber.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a receive channel for the topic. The channel
	// closes when ctx is canceled or the bus shuts down.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
