// Package queue moves channel resolution requests through RabbitMQ.
package queue

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config names the broker and the queue. The queue is declared non-durable on
// both ends; the declarations must agree or the broker refuses the second one.
type Config struct {
	URL         string
	Queue       string
	DialTimeout time.Duration
}

// Message is one delivery handed to a Handler.
type Message struct {
	ID          string
	Body        []byte
	Redelivered bool
}

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, false, false, false, false, nil)
	return err
}

func dial(cfg Config) (*amqp.Connection, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return amqp.DialConfig(cfg.URL, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
}
