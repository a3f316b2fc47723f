package presence

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
)

// Signal is a transient typing indicator. It has no identity and is never
// persisted; a lost signal is simply not delivered.
type Signal struct {
	SessionID string `json:"sessionId"`
	ActorName string `json:"actorName"`
	IsAgent   bool   `json:"isAgent"`
	IsTyping  bool   `json:"isTyping"`
}

// SignalPublisher is the sending side of the typing channel.
type SignalPublisher interface {
	Publish(ctx context.Context, signal Signal)
}

// Publisher pushes typing signals onto the per-session pub/sub channel.
// Publishing is fire-and-forget: failures are dropped silently, never
// retried, never surfaced to the typist.
type Publisher struct {
	redis *redisclient.Client
}

func NewPublisher(redisClient *redisclient.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

func (p *Publisher) Publish(ctx context.Context, signal Signal) {
	data, err := json.Marshal(signal)
	if err != nil {
		return
	}

	channel := redisclient.TypingChannel(signal.SessionID)
	if err := p.redis.Publish(ctx, channel, data).Err(); err != nil {
		log.Debug().Err(err).Str("sessionId", signal.SessionID).Msg("typing signal dropped")
	}
}
