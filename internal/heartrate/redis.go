package heartrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Channel is where readings are published for the phone application layer
	Channel = "dive:heart_rate"
	// LastKey is a hash of node id -> latest reading JSON
	LastKey = "dive:heart_rate:last"
)

// RedisPublisher publishes readings and keeps the latest one per node
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Record(ctx context.Context, r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, LastKey, r.NodeID, payload)
	pipe.Publish(ctx, Channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Latest returns the last reading of every node
func (p *RedisPublisher) Latest(ctx context.Context) ([]Reading, error) {
	vals, err := p.client.HGetAll(ctx, LastKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read failed: %w", err)
	}
	out := make([]Reading, 0, len(vals))
	for _, v := range vals {
		var r Reading
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Subscribe streams published readings until ctx is done
func Subscribe(ctx context.Context, client *redis.Client) <-chan Reading {
	out := make(chan Reading)
	sub := client.Subscribe(ctx, Channel)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var r Reading
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
