// Package queue carries deferred transactions to the processor worker over
// RabbitMQ. Messages hold only the transaction id; the worker reloads the
// record before driving it through the state machine.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const processingQueue = "transaction.processing"

type message struct {
	TransactionID string `json:"transactionId"`
}

type ProcessingQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logrus.Logger
}

func NewProcessingQueue(uri string, logger *logrus.Logger) (*ProcessingQueue, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		processingQueue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &ProcessingQueue{conn: conn, channel: ch, logger: logger}, nil
}

func (q *ProcessingQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}

// Enqueue publishes a transaction id for deferred processing.
func (q *ProcessingQueue) Enqueue(ctx context.Context, transactionID string) error {
	body, err := json.Marshal(message{TransactionID: transactionID})
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = q.channel.Publish(
		"",              // exchange
		processingQueue, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish queue message: %w", err)
	}
	return nil
}

// Job is one deferred transaction awaiting settlement. The delivery stays
// unacked until the worker reports the outcome, so a crash mid-processing
// puts the message back on the queue.
type Job struct {
	TransactionID string
	delivery      amqp.Delivery
}

// Ack marks the job settled. The transaction record, not the message, is the
// source of truth after this point.
func (j Job) Ack() error {
	return j.delivery.Ack(false)
}

// Requeue returns the job to the queue for another attempt.
func (j Job) Requeue() error {
	return j.delivery.Nack(false, true)
}

// Consume yields jobs until ctx is cancelled. Malformed messages are
// rejected without requeue; well-formed ones are acked by the worker once
// processing settles.
func (q *ProcessingQueue) Consume(ctx context.Context) (<-chan Job, error) {
	msgs, err := q.channel.Consume(
		processingQueue, // queue
		"",              // consumer
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	jobs := make(chan Job)
	go func() {
		defer close(jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var m message
				if err := json.Unmarshal(msg.Body, &m); err != nil {
					q.logger.WithError(err).Warn("rejecting malformed queue message")
					msg.Reject(false)
					continue
				}

				jobs <- Job{TransactionID: m.TransactionID, delivery: msg}
			}
		}
	}()

	return jobs, nil
}
