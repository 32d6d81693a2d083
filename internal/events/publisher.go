// Package events publishes transaction and withdrawal lifecycle events to a
// RabbitMQ topic exchange. Publishing happens after the state change has been
// committed; a failed publish never undoes or fails the state change.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Event types, also used as routing keys.
const (
	TransactionCreated   = "transaction.created"
	TransactionValidated = "transaction.validated"
	TransactionPaid      = "transaction.paid"
	TransactionCancelled = "transaction.cancelled"
	PaymentInitiated     = "payment.initiated"
	PaymentFailed        = "payment.failed"
	WithdrawalCreated    = "withdrawal.created"
	WithdrawalApproved   = "withdrawal.approved"
	WithdrawalPaid       = "withdrawal.paid"
	WithdrawalRejected   = "withdrawal.rejected"
)

// Event is the payload published for every lifecycle change.
type Event struct {
	Type       string    `json:"type"`
	TenantCode string    `json:"tenant_code"`
	EntityID   uint      `json:"entity_id"`
	Reference  string    `json:"reference,omitempty"`
	Status     string    `json:"status"`
	ActorID    *uint     `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is implemented by event sinks.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct {
	Log logrus.FieldLogger
}

func (p NopPublisher) Publish(ctx context.Context, event Event) error {
	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{"type": event.Type, "entity_id": event.EntityID}).Debug("Event publish skipped")
	}
	return nil
}

func (p NopPublisher) Close() {}

// RabbitPublisher publishes events as persistent JSON messages.
type RabbitPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitPublisher dials the broker and declares the durable topic exchange.
func NewRabbitPublisher(rawURL, exchange string) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("events exchange is required")
	}

	// bounded dial so startup does not hang on an unreachable broker
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{exchange: exchange, conn: conn, channel: ch}, nil
}

// Publish sends event with its type as routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.channel.IsClosed() {
		if err := p.reopen(); err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
	}
	return p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

func (p *RabbitPublisher) reopen() error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	return nil
}

// Close releases the channel and the connection.
func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
