package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

// MessageLister is the slice of the message log the feed needs for
// re-synchronization after a dropped subscription.
type MessageLister interface {
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

// Callbacks are invoked from the feed's goroutine.
//
// OnReset delivers the full ordered message log, both on open and after a
// reconnect. The change stream is a live tap, not a durable queue, so missed
// events are recovered by re-fetching, never by assuming replay.
type Callbacks struct {
	OnReset   func(messages []model.ChatMessage)
	OnMessage func(message model.ChatMessage)
	OnSession func(session model.ChatSession)
}

// Subscriber is the consuming side of the broker.
type Subscriber interface {
	Subscribe(topic string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// Manager opens typed feed handles over the broker. Each handle owns its
// underlying subscription and releases it on Close.
type Manager struct {
	broker Subscriber
	lister MessageLister
}

func NewManager(broker Subscriber, lister MessageLister) *Manager {
	return &Manager{broker: broker, lister: lister}
}

// Feed is a single session's live message stream. Inserts are applied
// idempotently: the transport delivers at least once, so events carrying an
// already-seen message id are dropped.
type Feed struct {
	sessionID string
	broker    Subscriber
	lister    MessageLister
	callbacks Callbacks

	mu     sync.Mutex
	seen   map[string]bool
	closed chan struct{}
	once   sync.Once
}

func (m *Manager) Open(ctx context.Context, sessionID string, callbacks Callbacks) *Feed {
	f := &Feed{
		sessionID: sessionID,
		broker:    m.broker,
		lister:    m.lister,
		callbacks: callbacks,
		seen:      make(map[string]bool),
		closed:    make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Close releases the underlying subscription. Safe to call more than once.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.closed)
	})
}

func (f *Feed) run(ctx context.Context) {
	topic := sse.TopicSession(f.sessionID)

	for {
		client := f.broker.Subscribe(topic)

		if err := f.resync(ctx); err != nil {
			log.Error().Err(err).Str("sessionId", f.sessionID).Msg("feed resync failed")
		}

		reopen := f.consume(ctx, client)
		f.broker.Unsubscribe(client)

		if !reopen {
			return
		}

		log.Warn().Str("sessionId", f.sessionID).Msg("feed subscription dropped, reconnecting")
	}
}

// consume drains events until the feed is closed, the context ends, or the
// broker drops the subscription. It reports whether the feed should reopen.
func (f *Feed) consume(ctx context.Context, client *sse.Client) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-f.closed:
			return false
		case <-client.Done:
			return true
		case event := <-client.Events:
			f.dispatch(event)
		}
	}
}

func (f *Feed) dispatch(event sse.Event) {
	switch event.Type {
	case sse.EventMessage:
		var msg model.ChatMessage
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			log.Error().Err(err).Msg("failed to decode message event")
			return
		}
		if f.markSeen(msg.ID) && f.callbacks.OnMessage != nil {
			f.callbacks.OnMessage(msg)
		}

	case sse.EventSession:
		var sess model.ChatSession
		if err := json.Unmarshal(event.Data, &sess); err != nil {
			log.Error().Err(err).Msg("failed to decode session event")
			return
		}
		if f.callbacks.OnSession != nil {
			f.callbacks.OnSession(sess)
		}
	}
}

// markSeen records the id and reports whether it was new.
func (f *Feed) markSeen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[id] {
		return false
	}
	f.seen[id] = true
	return true
}

func (f *Feed) resync(ctx context.Context) error {
	messages, err := f.lister.ListMessages(ctx, f.sessionID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	for _, msg := range messages {
		f.seen[msg.ID] = true
	}
	f.mu.Unlock()

	if f.callbacks.OnReset != nil {
		f.callbacks.OnReset(messages)
	}
	return nil
}
