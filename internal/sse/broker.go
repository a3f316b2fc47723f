package sse

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	// TopicDashboard receives every session's events, unfiltered.
	TopicDashboard = "dashboard"
)

// TopicSession is the per-session event topic.
func TopicSession(sessionID string) string {
	return "session:" + sessionID
}

// Event types pushed to subscribers.
const (
	EventMessage = "message"
	EventSession = "session"
	EventTyping  = "typing"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

// topicSub is one topic's client set plus the cancel for its redis
// subscription goroutine.
type topicSub struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Broker bridges redis pub/sub to in-process subscribers. One redis
// subscription is held per topic for as long as it has clients; when the
// last client leaves, the subscription is cancelled so a later re-subscribe
// cannot end up with two goroutines feeding the same topic.
type Broker struct {
	redis  *redisclient.Client
	topics map[string]*topicSub
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		topics: make(map[string]*topicSub),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(topic string) *Client {
	client := &Client{
		Topic:  topic,
		Events: make(chan Event, 100),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	sub := b.topics[topic]
	if sub == nil {
		subCtx, subCancel := context.WithCancel(b.ctx)
		sub = &topicSub{
			clients: make(map[*Client]bool),
			cancel:  subCancel,
		}
		b.topics[topic] = sub
		go b.subscribeToRedis(subCtx, topic)
	}
	sub.clients[client] = true
	clientCount := len(sub.clients)
	b.mu.Unlock()

	log.Info().
		Str("topic", topic).
		Int("clientCount", clientCount).
		Msg("broker client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.topics[client.Topic]; ok {
		delete(sub.clients, client)
		close(client.Done)

		if len(sub.clients) == 0 {
			sub.cancel()
			delete(b.topics, client.Topic)
		}

		log.Info().
			Str("topic", client.Topic).
			Int("clientCount", len(sub.clients)).
			Msg("broker client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, channelFor(topic), data).Err()
}

func channelFor(topic string) string {
	if topic == TopicDashboard {
		return redisclient.DashboardChannel()
	}
	if sessionID, ok := strings.CutPrefix(topic, "session:"); ok {
		return redisclient.SessionChannel(sessionID)
	}
	return "chat:" + topic
}

func (b *Broker) subscribeToRedis(ctx context.Context, topic string) {
	channel := channelFor(topic)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("topic", topic).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(topic, event)
		}
	}
}

func (b *Broker) broadcast(topic string, event Event) {
	b.mu.RLock()
	var clients []*Client
	if sub, ok := b.topics[topic]; ok {
		for client := range sub.clients {
			clients = append(clients, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", topic).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.topics {
		for client := range sub.clients {
			close(client.Done)
		}
	}
	b.topics = make(map[string]*topicSub)
}

func (b *Broker) ClientCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.topics[topic]; ok {
		return len(sub.clients)
	}
	return 0
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, sub := range b.topics {
		total += len(sub.clients)
	}
	return total
}
