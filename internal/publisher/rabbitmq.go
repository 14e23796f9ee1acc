// Package publisher announces newly ingested posts on a RabbitMQ exchange.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"news_crawler/internal/domain"
)

// ActionCreate is the only action emitted: posts are never updated after ingestion.
const ActionCreate = "create"

const (
	appID       = "news-crawler"
	messageType = "post." + ActionCreate
)

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

type PostMessage struct {
	Action    string      `json:"action"`
	Post      domain.Post `json:"post"`
	Timestamp time.Time   `json:"timestamp"`
}

// RabbitMQ publishes PostMessages to a durable direct exchange.
type RabbitMQ struct {
	conn   *amqp.Connection
	cfg    Config
	logger *slog.Logger

	// amqp channels must not be shared between concurrent publishers
	mu      sync.Mutex
	channel *amqp.Channel
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher", "exchange", cfg.Exchange)
	logger.Info("connected to rabbitmq", "queue", cfg.QueueName, "routing_key", cfg.RoutingKey)

	return &RabbitMQ{
		conn:    conn,
		cfg:     cfg,
		logger:  logger,
		channel: ch,
	}, nil
}

// declareTopology sets up exchange -> queue so messages published before any
// consumer attaches are kept.
func declareTopology(ch *amqp.Channel, cfg Config) error {
	const durable, autoDelete, internal, exclusive, noWait = true, false, false, false, false

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare(cfg.QueueName, durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}

// Publish sends a create message for post. The slug doubles as message id so
// consumers can deduplicate redeliveries.
func (r *RabbitMQ) Publish(ctx context.Context, post *domain.Post) error {
	now := time.Now().UTC()
	body, err := json.Marshal(PostMessage{
		Action:    ActionCreate,
		Post:      *post,
		Timestamp: now,
	})
	if err != nil {
		return fmt.Errorf("marshal post %d: %w", post.ID, err)
	}

	msg := amqp.Publishing{
		AppId:        appID,
		MessageId:    post.Slug,
		Type:         messageType,
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		Headers: amqp.Table{
			"source_id": strconv.FormatInt(post.SourceID, 10),
		},
		Body: body,
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(ctx, r.cfg.Exchange, r.cfg.RoutingKey, false, false, msg)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish post %d: %w", post.ID, err)
	}

	r.logger.Debug("published post", "post_id", post.ID, "slug", post.Slug)
	return nil
}

// Close releases the channel and the connection. Safe to call more than once.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil && !r.channel.IsClosed() {
		r.channel.Close()
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}
	return nil
}
