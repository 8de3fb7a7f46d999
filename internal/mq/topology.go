package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs         Exchange = "fresco.jobs"
	ExchangeInstructions Exchange = "fresco.instructions"
	ExchangeAcks         Exchange = "fresco.acks"
	ExchangeDLQ          Exchange = "fresco.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsSubmitted        Queue = "jobs.submitted"
	QueueInstructionsOutbound Queue = "instructions.outbound"
	QueueRobotAcks            Queue = "robot.acks"
	QueueDLQInstructions      Queue = "dlq.instructions"
)

// Routing keys.
const (
	RoutingKeySubmitted       RoutingKey = "submitted"
	RoutingKeyOutbound        RoutingKey = "outbound"
	RoutingKeyAck             RoutingKey = "ack"
	RoutingKeyDLQInstructions RoutingKey = "instructions"
)

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "direct"},
		{ExchangeInstructions, "direct"},
		{ExchangeAcks, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Аргументы для очередей с DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQInstructions),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// jobs.submitted — без DLQ (jobs подхватываются polling fallback'ом)
		{QueueJobsSubmitted, nil},

		// instructions.outbound — с DLQ (неразобранные инструкции требуют ручного вмешательства)
		{QueueInstructionsOutbound, dlqArgs},

		// robot.acks — без DLQ (события от робота)
		{QueueRobotAcks, nil},

		// dlq.instructions — сама DLQ очередь
		{QueueDLQInstructions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsSubmitted, RoutingKeySubmitted, ExchangeJobs},
		{QueueInstructionsOutbound, RoutingKeyOutbound, ExchangeInstructions},
		{QueueRobotAcks, RoutingKeyAck, ExchangeAcks},
		{QueueDLQInstructions, RoutingKeyDLQInstructions, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Fresco RabbitMQ Topology:

    fresco.jobs (direct)
    └── jobs.submitted [routing: submitted]
            Consumer: Plan Job Manager

    fresco.instructions (direct)
    └── instructions.outbound [routing: outbound]
            Consumer: Robot (fresco-robotsim for local dev)
            DLQ: dlq.instructions
            Publisher confirms: yes

    fresco.acks (direct)
    └── robot.acks [routing: ack]
            Consumer: Execution Tracker

    fresco.dlq (direct)
    └── dlq.instructions [routing: instructions]
            Manual processing
  `
}
