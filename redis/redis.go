package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis provides the change feed over Redis pub/sub, so live queries on
// every instance see writes made on any instance.
type Redis struct {
	cli    *redis.Client
	prefix string
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. Channels are named prefix:USER_ID.
func Connect(ctx context.Context, addr, prefix string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{
		cli:    cli,
		prefix: prefix,
	}, nil
}

const (
	defaultPrefix = "messages"
	changed       = "changed"
	retryDelay    = time.Second
)

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

func (r *Redis) channel(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

// Publish notifies the subscribers of each user in one pipeline.
func (r *Redis) Publish(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Publish(ctx, r.channel(id), changed)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe listens on the user's channel until ctx is done. A failure is
// reported once until the connection recovers; every (re)subscription
// confirmation counts as a change because notifications may have been missed.
func (r *Redis) Subscribe(ctx context.Context, userID string, handler func(error)) error {
	pubsub := r.cli.Subscribe(ctx, r.channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		defer pubsub.Close()

		failing := false
		for {
			msg, err := pubsub.Receive(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if !failing {
					handler(fmt.Errorf("receive: %w", err))
					failing = true
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}

			switch msg.(type) {
			case *redis.Message, *redis.Subscription:
				failing = false
				handler(nil)
			}
		}
	}()
	return nil
}
