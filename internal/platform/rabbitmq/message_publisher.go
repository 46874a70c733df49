package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"homeai/internal/model"
)

// queueDeclarer is the part of *amqp.Channel the publisher needs to make the
// queue exist.
type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// MessagePublisher enqueues chat messages for the persist worker. The queue
// is declared durable on first use; deliveries are marked persistent so
// unprocessed messages survive a broker restart.
type MessagePublisher struct {
	conn      *amqp.Connection
	queueName string

	mu       sync.Mutex
	declared bool
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{conn: conn, queueName: queueName}
}

// ensureQueue declares the queue once. A failed declare does not latch, so a
// transient broker error is retried on the next publish.
func (p *MessagePublisher) ensureQueue(ch queueDeclarer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		return err
	}
	p.declared = true
	return nil
}

func (p *MessagePublisher) Publish(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message payload failed: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open publish channel failed: %w", err)
	}
	defer ch.Close()

	if err := p.ensureQueue(ch); err != nil {
		return fmt.Errorf("declare queue %q failed: %w", p.queueName, err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, publishing); err != nil {
		return fmt.Errorf("publish to %q failed: %w", p.queueName, err)
	}
	return nil
}
