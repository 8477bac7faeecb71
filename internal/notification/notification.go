package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/debtledger/internal/ledger"
)

// Notifier delivers ledger events to downstream systems.
type Notifier interface {
	Notify(ctx context.Context, event ledger.Event) error
}

// Message is the wire form of a ledger event.
type Message struct {
	ID    string    `json:"id"`
	Event string    `json:"event"`
	By    string    `json:"by"`
	Value string    `json:"value"`
	At    time.Time `json:"at"`
}

// NewMessage converts a ledger event to its wire form.
func NewMessage(event ledger.Event) Message {
	value := "0"
	if event.Value != nil {
		value = event.Value.String()
	}
	return Message{ID: event.ID, Event: event.Name, By: event.By.String(), Value: value, At: event.At}
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify writes the event to the structured logger.
func (n *LoggerNotifier) Notify(_ context.Context, event ledger.Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	msg := NewMessage(event)
	n.logger.Info("ledger event", "id", msg.ID, "event", msg.Event, "by", msg.By, "value", msg.Value)
	return nil
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier publishes on "<prefix>:events".
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "debts"
	}
	return &RedisNotifier{client: client, channel: prefix + ":events"}
}

// Channel returns the pub/sub channel events are published on.
func (n *RedisNotifier) Channel() string {
	return n.channel
}

// Notify publishes the event.
func (n *RedisNotifier) Notify(ctx context.Context, event ledger.Event) error {
	payload, err := json.Marshal(NewMessage(event))
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers to all notifiers even when some fail.
func (m Multi) Notify(ctx context.Context, event ledger.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
