package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobCreated  MessageType = "job.created"
	MessageTypeJobFinished MessageType = "job.finished"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobCreatedPayload — событие о материализованном job'е.
type JobCreatedPayload struct {
	JobID       uuid.UUID `json:"job_id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
	ScheduledAt string    `json:"scheduled_at"`
}

// JobFinishedPayload — событие о завершении попытки исполнения.
// Status — итоговый статус строки: completed, failed, cancelled или
// pending (возврат на retry).
type JobFinishedPayload struct {
	JobID      uuid.UUID `json:"job_id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RetryCount int       `json:"retry_count"`
}

// Publisher публикует события жизненного цикла job'ов.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish сериализует и публикует сообщение в exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJobCreated публикует событие о новом job'е.
// Потребитель: executor-сервис (fast-path пробуждение).
func (p *Publisher) PublishJobCreated(ctx context.Context, jobID, workflowID uuid.UUID, scheduledAt string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobCreated,
		Payload:   JobCreatedPayload{JobID: jobID, WorkflowID: workflowID, ScheduledAt: scheduledAt},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyCreated, msg)
}

// PublishJobFinished публикует событие о завершении попытки исполнения.
func (p *Publisher) PublishJobFinished(ctx context.Context, jobID, workflowID uuid.UUID, status, errMsg string, retryCount int) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeJobFinished,
		Payload: JobFinishedPayload{
			JobID:      jobID,
			WorkflowID: workflowID,
			Status:     status,
			Error:      errMsg,
			RetryCount: retryCount,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyFinished, msg)
}
