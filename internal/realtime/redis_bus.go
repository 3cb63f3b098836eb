package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ratherlab/rather/backend/internal/preferences"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	errMissingRedisAddress = errors.New("redis bus: address required")
	errMissingRedisChannel = errors.New("redis bus: channel required")
	errMissingDeliver      = errors.New("redis bus: deliver callback required")
)

// Event is the wire form of a committed vote shared between API replicas.
type Event struct {
	CategoryID   uint      `json:"category_id"`
	PreferenceID uint      `json:"preference_id"`
	VoteID       uint      `json:"vote_id"`
	Vote         string    `json:"vote"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventFromVote converts a service notification into its wire form.
func EventFromVote(event preferences.VoteEvent) Event {
	timestamp := event.Vote.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return Event{
		CategoryID:   event.CategoryID,
		PreferenceID: event.Vote.PreferenceID,
		VoteID:       event.Vote.ID,
		Vote:         event.Vote.Vote.String(),
		Timestamp:    timestamp.UTC(),
	}
}

// RedisBusConfig configures the Redis fan-out.
type RedisBusConfig struct {
	Address string
	Channel string
	Logger  *zap.Logger
}

// RedisBus publishes vote events to a Redis channel and forwards every event
// seen on that channel to a local callback.
type RedisBus struct {
	client  *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBus connects to Redis and verifies the connection with a ping.
func NewRedisBus(ctx context.Context, cfg RedisBusConfig) (*RedisBus, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errMissingRedisAddress
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errMissingRedisChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        address,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		client:  client,
		channel: channel,
		logger:  logger.With(zap.String("component", "redis_bus"), zap.String("channel", channel)),
	}, nil
}

// Publish sends the event to every subscribed replica, this one included.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// VoteRecorded publishes committed votes. Publish failures are logged and
// never fail the vote.
func (b *RedisBus) VoteRecorded(ctx context.Context, event preferences.VoteEvent) {
	if err := b.Publish(ctx, EventFromVote(event)); err != nil {
		b.logger.Warn("failed to publish vote event", zap.Uint("category_id", event.CategoryID), zap.Error(err))
	}
}

// Forward subscribes to the channel and calls deliver for every event until
// ctx is cancelled.
func (b *RedisBus) Forward(ctx context.Context, deliver func(Event)) error {
	if deliver == nil {
		return errMissingDeliver
	}
	subscription := b.client.Subscribe(ctx, b.channel)
	defer subscription.Close()

	if _, err := subscription.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	messages := subscription.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok || message == nil {
				return nil
			}
			event, err := DecodeEvent(message.Payload)
			if err != nil {
				b.logger.Warn("bad redis vote payload", zap.Error(err))
				continue
			}
			deliver(event)
		}
	}
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

// DecodeEvent parses a channel payload.
func DecodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	if event.CategoryID == 0 || event.PreferenceID == 0 {
		return Event{}, errors.New("vote event is missing identifiers")
	}
	return event, nil
}
