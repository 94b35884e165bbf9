package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher is the part of an AMQP channel the event publisher needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EventPublisher publishes console session lifecycle events.
type EventPublisher struct {
	channel    Publisher
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewEventPublisher(channel Publisher, exchange, routingKey string) *EventPublisher {
	return &EventPublisher{
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// PublishActivityWithDetails publishes a fully populated activity message.
// The timestamp is filled in when missing.
func (p *EventPublisher) PublishActivityWithDetails(message models.ActivityMessage) error {
	if p == nil || p.channel == nil {
		return nil
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = p.now()
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal activity message: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   message.Timestamp,
		},
	)

	if err != nil {
		logrus.WithError(err).Error("Failed to publish activity message")
		return fmt.Errorf("%w: %v", models.ErrEventPublish, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":     message.UserID,
		"session_id":  message.SessionID,
		"service":     message.ServiceName,
		"action":      message.Action,
		"exchange":    p.exchange,
		"routing_key": p.routingKey,
	}).Debug("Activity message published")

	return nil
}
