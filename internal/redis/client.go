package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionChannel carries message and status events for one chat session.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

// DashboardChannel carries every session's events, unfiltered, for the
// agent dashboard.
func DashboardChannel() string {
	return "chat:sessions"
}

// TypingChannel carries ephemeral typing signals for one chat session.
// Nothing published here is ever persisted.
func TypingChannel(sessionID string) string {
	return fmt.Sprintf("chat:typing:%s", sessionID)
}
