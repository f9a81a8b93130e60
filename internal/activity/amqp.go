package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"authgate/internal/domain"
)

// Event is the JSON document published for each activity entry.
type Event struct {
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	ActivityType string         `json:"activityType"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func NewEvent(entry *domain.ActivityLog) Event {
	return Event{
		UserID:       entry.UserID,
		Username:     entry.Username,
		ActivityType: string(entry.ActivityType),
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Metadata:     entry.Metadata,
		CreatedAt:    entry.CreatedAt,
	}
}

// RoutingKey is the topic key an entry is published under, e.g. "activity.login".
func RoutingKey(t domain.ActivityType) string {
	return "activity." + string(t)
}

// AMQPSink publishes activity entries to a durable topic exchange. It cannot list entries.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func DialAMQP(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		return nil, fmt.Errorf("amqp exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Append(ctx context.Context, entry *domain.ActivityLog) error {
	body, err := json.Marshal(NewEvent(entry))
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(entry.ActivityType), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    entry.CreatedAt,
		Body:         body,
	})
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

var _ Sink = (*AMQPSink)(nil)
