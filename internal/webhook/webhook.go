// Package webhook decouples BenchmarkedRequestClient's callback POSTs from
// the request path, via a local RabbitMQ queue drained by a detached
// consumer, using amqp091-go directly over a standalone connection rather
// than a wrapper helper (see DESIGN.md's dropped-dependency notes).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

const queueName = "icvsb.webhook.callbacks"

// Publisher enqueues callback jobs and, once StartConsumer is called, drains them
// to the target URIs on a detached consumer goroutine.
type Publisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	httpClient *http.Client
	logger     mlog.Logger
}

// job is the wire shape of one queued callback delivery.
type job struct {
	CallbackURI string          `json:"callback_uri"`
	Body        json.RawMessage `json:"body"`
}

// NewPublisher dials amqpURL and declares the durable callback queue.
func NewPublisher(amqpURL string, logger mlog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("webhook: dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("webhook: open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()

		return nil, fmt.Errorf("webhook: declare queue: %w", err)
	}

	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	return &Publisher{conn: conn, ch: ch, httpClient: &http.Client{Timeout: 10 * time.Second}, logger: logger}, nil
}

// Publish enqueues a callback delivery for callbackURI carrying payload.
func (p *Publisher) Publish(ctx context.Context, callbackURI string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	msg, err := json.Marshal(job{CallbackURI: callbackURI, Body: body})
	if err != nil {
		return fmt.Errorf("webhook: marshal job: %w", err)
	}

	p.logger.Infof("webhook: enqueueing callback to %s", callbackURI)

	err = p.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         msg,
	})
	if err != nil {
		return fmt.Errorf("webhook: publish: %w", err)
	}

	return nil
}

// StartConsumer runs a detached delivery loop until ctx is canceled. Each
// job is POSTed to its CallbackURI, never blocking the request path that
// enqueued it. A failed POST is logged and the message is nacked for
// redelivery; a malformed job is logged and nacked without redelivery; a
// callback that answers with a non-2xx status is logged and acked.
func (p *Publisher) StartConsumer(ctx context.Context) error {
	deliveries, err := p.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("webhook: consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				p.deliver(ctx, d)
			}
		}
	}()

	return nil
}

func (p *Publisher) deliver(ctx context.Context, d amqp.Delivery) {
	var j job

	if err := json.Unmarshal(d.Body, &j); err != nil {
		p.logger.Errorf("webhook: malformed job: %v", err)
		d.Nack(false, false)

		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.CallbackURI, bytes.NewReader(j.Body))
	if err != nil {
		p.logger.Errorf("webhook: build request for %s: %v", j.CallbackURI, err)
		d.Nack(false, false)

		return
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warnf("webhook: delivery to %s failed: %v", j.CallbackURI, err)
		d.Nack(false, true)

		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		p.logger.Warnf("webhook: %s responded with status %d", j.CallbackURI, resp.StatusCode)
	}

	d.Ack(false)
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}

	return p.conn.Close()
}
