package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Обменники.
const (
	ExchangeJobs Exchange = "crm.jobs"
	ExchangeDLQ  Exchange = "crm.dlq"
)

// Очереди.
const (
	QueueJobsCreated  Queue = "jobs.created"
	QueueJobsFinished Queue = "jobs.finished"
	QueueDLQJobs      Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyCreated  RoutingKey = "created"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQJobs  RoutingKey = "jobs"
)

// SetupTopology декларирует обменники, очереди и привязки.
// Идемпотентна: повторный вызов на существующей топологии безопасен.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeJobs, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name),
			"direct",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// jobs.created — с DLQ: непарсящиеся wake-сообщения уходят туда
		{QueueJobsCreated, dlqArgs},

		// jobs.finished — события завершения, без DLQ
		{QueueJobsFinished, nil},

		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			q.args,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsCreated, RoutingKeyCreated, ExchangeJobs},
		{QueueJobsFinished, RoutingKeyFinished, ExchangeJobs},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),
			string(b.routingKey),
			string(b.exchange),
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
