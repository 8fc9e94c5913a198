package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology declares the durable ingest queue and its retry queue.
// Messages in the retry queue expire back into the ingest queue through the
// default exchange.
func DeclareTopology(ch *amqp.Channel, queueName, retryQueue string) error {
	if _, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", queueName, err)
	}

	if _, err := ch.QueueDeclare(
		retryQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queueName,
		},
	); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", retryQueue, err)
	}
	return nil
}
