package notifier

import (
	"encoding/json"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ Producer = &AMQPNotifier{}

const (
	reviewExchange   string = "listing_review"
	reviewRoutingKey        = "review"
)

// AMQPNotifier publishes review events via RabbitMQ
type AMQPNotifier struct {
	logger     *zap.Logger
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPNotifier returns a review event Producer over RabbitMQ
func NewAMQPNotifier(logger *zap.Logger, amqpURI string) (*AMQPNotifier, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	notifier := &AMQPNotifier{
		logger:     logger,
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := notifier.setupReviewExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for review events")
	}

	return notifier, nil
}

func (a *AMQPNotifier) setupReviewExchange() error {
	return a.channel.ExchangeDeclare(
		reviewExchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPNotifier) Close() {
	a.channel.Close()
	a.connection.Close()
}

// SendReviewEvent will publish the review decision for an external notifier
// to consume
func (a *AMQPNotifier) SendReviewEvent(e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode event into bytes")
	}
	if err := a.channel.Publish(
		reviewExchange,
		reviewRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish review event")
	}
	return nil
}
