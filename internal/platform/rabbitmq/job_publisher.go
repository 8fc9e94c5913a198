package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfrag/internal/model"
)

type JobPublisher struct {
	conn       *amqp.Connection
	queueName  string
	retryQueue string
	backoff    time.Duration
}

func NewJobPublisher(conn *amqp.Connection, queueName, retryQueue string, backoff time.Duration) *JobPublisher {
	return &JobPublisher{
		conn:       conn,
		queueName:  queueName,
		retryQueue: retryQueue,
		backoff:    backoff,
	}
}

// Publish schedules job for immediate processing.
func (p *JobPublisher) Publish(ctx context.Context, job model.IngestJob) error {
	return p.publish(ctx, p.queueName, job, "")
}

// PublishRetry parks job in the retry queue until its backoff expires.
// job.Attempt is the attempt that will run next.
func (p *JobPublisher) PublishRetry(ctx context.Context, job model.IngestJob) error {
	return p.PublishDelayed(ctx, job, RetryDelay(p.backoff, job.Attempt-1))
}

// PublishDelayed parks job in the retry queue for delay, leaving its attempt
// unchanged.
func (p *JobPublisher) PublishDelayed(ctx context.Context, job model.IngestJob, delay time.Duration) error {
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return p.publish(ctx, p.retryQueue, job, strconv.FormatInt(delay.Milliseconds(), 10))
}

func (p *JobPublisher) publish(ctx context.Context, queue string, job model.IngestJob, expiration string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, p.queueName, p.retryQueue); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Expiration:   expiration,
		},
	); err != nil {
		return fmt.Errorf("publish job failed: %w", err)
	}
	return nil
}

// RetryDelay is base * 2^(failedAttempt-1); failedAttempt below 1 counts as 1.
func RetryDelay(base time.Duration, failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	if failedAttempt > 16 {
		failedAttempt = 16
	}
	return base * time.Duration(1<<(failedAttempt-1))
}
