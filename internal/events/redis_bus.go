package events

import (
	"context"
	"encoding/json"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

const DefaultChannel = "posledger:events"

// RedisBus publishes ledger events on a Redis channel so every server
// attached to the same store learns about commits made elsewhere.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Channel() string {
	return b.channel
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Relay forwards events received on the Redis channel into local until ctx
// is done. Malformed payloads are reported through onError and skipped.
func (b *RedisBus) Relay(ctx context.Context, local Publisher, onError func(error)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("events: redis subscription closed")
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if err := local.Publish(ctx, event); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
