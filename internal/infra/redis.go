package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	notifierDialTimeout  = 3 * time.Second
	notifierWriteTimeout = 2 * time.Second
	notifierPoolSize     = 4
)

// NewNotifierClient connects to the Redis server that carries transfer
// notifications on channel. Publishing is fire-and-forget, so the client keeps
// short timeouts and a small pool; a slow broker must not hold up transfers.
func NewNotifierClient(ctx context.Context, url, channel string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	if err := validateChannel(channel); err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DialTimeout = notifierDialTimeout
	opt.WriteTimeout = notifierWriteTimeout
	opt.PoolSize = notifierPoolSize

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Subscribers reports how many clients currently listen on channel.
func Subscribers(ctx context.Context, client *redis.Client, channel string) (int64, error) {
	counts, err := client.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, fmt.Errorf("count subscribers on %s: %w", channel, err)
	}
	return counts[channel], nil
}

func validateChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("notification channel is required")
	}
	if strings.ContainsFunc(channel, func(r rune) bool { return r <= ' ' }) {
		return fmt.Errorf("notification channel %q must not contain spaces or control characters", channel)
	}
	return nil
}
