package bus

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP is a RabbitMQ-backed Bus. Each consumer gets its own channel with
// prefetch 1, so a slow worker never starves its siblings; publishes share
// one channel guarded by a mutex and go to the default exchange with the
// queue name as routing key.
type AMQP struct {
	conn *amqp.Connection

	pubMu sync.Mutex
	pub   *amqp.Channel
}

// DialAMQP connects to the broker on the given vhost.
func DialAMQP(url, vhost string) (*AMQP, error) {
	cfg := amqp.Config{
		Vhost:      vhost,
		Properties: amqp.NewConnectionProperties(),
	}
	cfg.Properties.SetClientConnectionName("llmq")
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQP{conn: conn, pub: pub}, nil
}

func declareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}

func (b *AMQP) Consume(queue string) (<-chan Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	// One unacked message per consumer channel keeps dispatch fair across
	// the worker pool.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for m := range msgs {
			out <- Delivery{Body: m.Body}
			// Ack after hand-off; processing failures are handler-level
			// concerns and are not redelivered (callers own retries).
			_ = m.Ack(false)
		}
	}()
	return out, nil
}

func (b *AMQP) Publish(ctx context.Context, queue string, body []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if err := declareQueue(b.pub, queue); err != nil {
		return err
	}
	return b.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (b *AMQP) Close() error {
	return b.conn.Close()
}
