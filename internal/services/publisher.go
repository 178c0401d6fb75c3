package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"ticketsales/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PurchaseEvent is the domain event emitted after a purchase commits.
type PurchaseEvent struct {
	Type          string    `json:"type"`
	TransactionID int64     `json:"transaction_id"`
	Reference     string    `json:"reference"`
	UserID        string    `json:"user_id"`
	EventID       string    `json:"event_id"`
	CategoryID    int64     `json:"category_id"`
	Quantity      int       `json:"quantity"`
	Total         string    `json:"total"`
	Seats         []int     `json:"seats"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const PurchaseCompletedEvent = "purchase.completed"

type EventPublisher interface {
	PublishPurchase(ctx context.Context, evt PurchaseEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishPurchase(ctx context.Context, evt PurchaseEvent) error {
	return nil
}

// AMQPPublisher sends purchase events to a durable RabbitMQ queue. The connection is
// dialed lazily and re-dialed after a failure.
type AMQPPublisher struct {
	url     string
	queue   string
	breaker *utils.CircuitBreaker
	logger  *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, queue string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{
		url:     url,
		queue:   queue,
		breaker: utils.NewCircuitBreaker("amqp-publisher"),
		logger:  logger,
	}
}

func (p *AMQPPublisher) PublishPurchase(ctx context.Context, evt PurchaseEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}

	_, err = p.breaker.Execute(ctx, func() (any, error) {
		ch, err := p.channel()
		if err != nil {
			return nil, err
		}
		err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.Reference,
			Type:         evt.Type,
			Timestamp:    evt.OccurredAt,
			Body:         body,
		})
		if err != nil {
			p.reset()
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("publish purchase event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Info("connected to message broker", "queue", p.queue)
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *AMQPPublisher) Close() error {
	p.reset()
	return nil
}
