package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSocket publishes lines on a Redis pub/sub channel so that every
// server process can deliver them to its own websocket clients.
type RedisSocket struct {
	client  *redis.Client
	channel string
}

// NewRedisSocket creates a RedisSocket publishing on channel.
func NewRedisSocket(client *redis.Client, channel string) *RedisSocket {
	return &RedisSocket{client: client, channel: channel}
}

func (r *RedisSocket) Send(ctx context.Context, channel, topic string, payload any) error {
	line, err := Format(channel, topic, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, line).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Forward relays every published line into dst until ctx is done.
func (r *RedisSocket) Forward(ctx context.Context, dst Sink) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			dst.Deliver([]byte(msg.Payload))
		}
	}
}
