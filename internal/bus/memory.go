package bus

import (
	"context"
	"errors"
	"sync"
)

const memoryQueueDepth = 64

// Memory is an in-process Bus backed by buffered channels. It serves tests
// and the local "-bus memory" mode. Multiple consumers of one queue share
// the same channel, which gives the same competing-consumer semantics as a
// broker queue.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Delivery
	closed bool
}

// NewMemory constructs an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan Delivery)}
}

func (m *Memory) queue(name string) (chan Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("bus closed")
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Delivery, memoryQueueDepth)
		m.queues[name] = q
	}
	return q, nil
}

func (m *Memory) Consume(queue string) (<-chan Delivery, error) {
	return m.queue(queue)
}

func (m *Memory) Publish(ctx context.Context, queue string, body []byte) error {
	q, err := m.queue(queue)
	if err != nil {
		return err
	}
	// Copy so the caller may reuse its buffer after Publish returns.
	msg := Delivery{Body: append([]byte(nil), body...)}
	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes every queue channel. Publishing after Close returns an
// error instead of panicking.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, q := range m.queues {
		close(q)
	}
	return nil
}
