// Package bus abstracts the message transport. The dispatcher only needs
// named queues with consume and publish; connection management, recovery
// and broker topology stay behind this seam.
package bus

import "context"

// Delivery is one consumed message.
type Delivery struct {
	Body []byte
}

// Bus is the transport seam. Consume may be called more than once for the
// same queue; the broker load-balances deliveries across the resulting
// channels. A returned channel closes when the bus closes.
type Bus interface {
	Consume(queue string) (<-chan Delivery, error)
	Publish(ctx context.Context, queue string, body []byte) error
	Close() error
}
