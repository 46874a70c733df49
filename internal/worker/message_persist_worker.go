package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"homeai/internal/model"
	"homeai/internal/pkg/logging"
)

// prefetchCount bounds how many unacked deliveries the broker hands us at once.
const prefetchCount = 16

// MessageStore persists a drained chat message.
type MessageStore interface {
	Create(msg *model.Message) error
}

// MessagePersistWorker drains the chat message queue into the database.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      MessageStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageStore, queueName string) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(w.queueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "message-persist-worker", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(d)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) handle(d amqp.Delivery) {
	var msg model.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logging.L().Errorw("worker decode message failed", "error", err)
		// Malformed payloads never deserialize; requeueing would loop forever.
		_ = d.Nack(false, false)
		return
	}

	if err := w.repo.Create(&msg); err != nil {
		// Requeue once so a transient database outage does not lose the
		// message; a redelivered failure is dropped to avoid a poison loop.
		if !d.Redelivered {
			logging.L().Errorw("worker persist message failed, requeueing",
				"message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
			_ = d.Nack(false, true)
			return
		}
		logging.L().Errorw("worker dropping message after failed retry",
			"message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
