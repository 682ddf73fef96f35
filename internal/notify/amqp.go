// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// DefaultQueue receives notifications when AMQPConfig.Queue is empty.
const DefaultQueue = "tasklane.notifications"

// AMQPConfig configures the AMQP notifier.
type AMQPConfig struct {
	URL          string
	Queue        string
	QueueDurable bool
}

// publisher is the subset of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications as JSON messages to a queue consumed
// by the mail service.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
	now     func() time.Time
}

var _ auth.NotificationPort = (*AMQPNotifier)(nil)

// NewAMQPNotifier dials the broker and declares the queue.
func NewAMQPNotifier(cfg AMQPConfig) (*AMQPNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, oops.Code("NOTIFIER_CONFIG_INVALID").Errorf("amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, oops.Code("AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AMQP_CHANNEL_FAILED").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.QueueDurable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("AMQP_QUEUE_DECLARE_FAILED").With("queue", queue).Wrap(err)
	}

	n := newAMQPNotifier(ch, queue)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch publisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{channel: ch, queue: queue, now: time.Now}
}

// Notify publishes n to the queue. Messages are persistent and carry the
// notification kind as their type.
func (a *AMQPNotifier) Notify(ctx context.Context, n auth.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return oops.Code("NOTIFICATION_ENCODE_FAILED").With("kind", string(n.Kind)).Wrap(err)
	}
	err = a.channel.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ulid.Make().String(),
		Type:         string(n.Kind),
		Timestamp:    a.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return oops.Code("NOTIFICATION_PUBLISH_FAILED").
			With("kind", string(n.Kind)).
			With("queue", a.queue).
			Wrap(err)
	}
	return nil
}

// Close closes the channel and connection.
func (a *AMQPNotifier) Close() error {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			return oops.Code("AMQP_CLOSE_FAILED").Wrap(err)
		}
	}
	return nil
}
