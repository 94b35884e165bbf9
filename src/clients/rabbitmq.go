package clients

import (
	"fmt"

	"handyhub-admin-console/src/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewRabbitMQ(cfg *config.QueueConfig) (*RabbitMQ, error) {
	logrus.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Connecting to RabbitMQ...")
	conn, err := amqp.Dial(cfg.RabbitMQ.Url)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to RabbitMQ")
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		logrus.WithError(err).Error("Failed to open a channel")
		_ = conn.Close()
		return nil, err
	}

	logrus.Info("Connected to RabbitMQ")

	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		cfg:     &cfg.RabbitMQ,
	}, nil
}

func (r *RabbitMQ) Close() error {
	var firstErr error

	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close RabbitMQ channel")
			firstErr = err
		} else {
			logrus.Info("RabbitMQ channel closed")
		}
	}

	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close RabbitMQ connection")
			if firstErr == nil {
				firstErr = err
			}
		} else {
			logrus.Info("RabbitMQ connection closed")
		}
	}

	return firstErr
}

// SetupExchange declares the session events exchange.
func (r *RabbitMQ) SetupExchange() error {
	err := r.Channel.ExchangeDeclare(
		r.cfg.Exchange,
		r.cfg.ExchangeType,
		r.cfg.Durable,
		r.cfg.AutoDelete,
		r.cfg.Internal,
		r.cfg.NoWait,
		nil,
	)

	if err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	return nil
}

// Publisher returns an event publisher bound to the configured exchange and
// routing key.
func (r *RabbitMQ) Publisher() *EventPublisher {
	return NewEventPublisher(r.Channel, r.cfg.Exchange, r.cfg.RoutingKey)
}
