package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fresco/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobSubmitted MessageType = "job.submitted"
	MessageTypeInstruction  MessageType = "instruction"
	MessageTypeRobotAck     MessageType = "robot.ack"
)

// AckEvent — вид события от робота.
type AckEvent string

const (
	// AckEventAck — инструкция выполнена.
	AckEventAck AckEvent = "ACK"

	// AckEventComplete — робот считает маршрут завершённым.
	AckEventComplete AckEvent = "COMPLETE"

	// AckEventFault — отказ: выполнение невозможно продолжить.
	AckEventFault AckEvent = "FAULT"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobSubmittedPayload — payload для события о новом запросе на планирование.
type JobSubmittedPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// InstructionPayload — одна инструкция маршрута для робота.
//
// Seq строго возрастает внутри job; IdempotencyToken = "{job_id}:{seq}".
// Робот обязан трактовать повторную доставку того же (job_id, seq) как
// no-op — это контракт потребителя, диспетчер его не навязывает.
type InstructionPayload struct {
	JobID            uuid.UUID       `json:"job_id"`
	Seq              int64           `json:"seq"`
	IdempotencyToken string          `json:"idempotency_token"`
	Waypoint         domain.Waypoint `json:"waypoint"`
	IsFinal          bool            `json:"is_final"`
}

// AckPayload — событие от робота.
type AckPayload struct {
	JobID  uuid.UUID `json:"job_id"`
	Seq    int64     `json:"seq"`
	Event  AckEvent  `json:"event"`
	Reason string    `json:"reason,omitempty"`
}

// InstructionToken возвращает idempotency token инструкции.
func InstructionToken(jobID uuid.UUID, seq int64) string {
	return fmt.Sprintf("%s:%d", jobID, seq)
}

// Publish публикует сообщение в указанный exchange с routing key.
// Не ждёт подтверждения брокера; для инструкций используйте
// PublishConfirmed.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
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

// PublishConfirmed публикует сообщение и блокируется до подтверждения
// брокером durable-приёма (publisher confirm). Канал соединения открыт в
// confirm mode, поэтому подтверждение приходит для каждой публикации.
func (p *Publisher) PublishConfirmed(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
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

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm for %s/%s: %w", exchange, routingKey, err)
		}
		if !acked {
			return fmt.Errorf("broker nacked publish to %s/%s", exchange, routingKey)
		}

		p.logger.Debug("published message (confirmed)",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJobSubmitted публикует событие о новом запросе на планирование.
// Потребитель: Plan Job Manager.
func (p *Publisher) PublishJobSubmitted(ctx context.Context, jobID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobSubmitted,
		Payload:   JobSubmittedPayload{JobID: jobID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeySubmitted, msg)
}

// PublishInstruction публикует инструкцию с ожиданием publisher confirm.
// Потребитель: робот.
func (p *Publisher) PublishInstruction(ctx context.Context, payload InstructionPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeInstruction,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.PublishConfirmed(ctx, ExchangeInstructions, RoutingKeyOutbound, msg)
}

// PublishAck публикует событие от робота.
// Потребитель: Execution Tracker. Используется роботом (и robotsim).
func (p *Publisher) PublishAck(ctx context.Context, payload AckPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRobotAck,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeAcks, RoutingKeyAck, msg)
}
