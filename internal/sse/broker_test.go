package sse

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
)

// Broker tests need a running redis. Set TEST_REDIS_URL to enable them.
func setupTestBroker(t *testing.T) *Broker {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := redisclient.NewClient(url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	broker := NewBroker(client)
	t.Cleanup(broker.Close)
	return broker
}

func testEvent(t *testing.T, id string) Event {
	t.Helper()
	data, err := json.Marshal(map[string]string{"id": id})
	require.NoError(t, err)
	return Event{Type: EventMessage, Data: data}
}

func receiveOne(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case event := <-client.Events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	broker := setupTestBroker(t)
	topic := TopicSession(uuid.NewString())

	client := broker.Subscribe(topic)
	defer broker.Unsubscribe(client)
	time.Sleep(100 * time.Millisecond) // let the redis subscription settle

	require.NoError(t, broker.Publish(context.Background(), topic, testEvent(t, "msg-1")))

	event := receiveOne(t, client)
	assert.Equal(t, EventMessage, event.Type)
}

func TestBroker_ResubscribeDeliversEachEventOnce(t *testing.T) {
	broker := setupTestBroker(t)
	topic := TopicSession(uuid.NewString())

	// Drain the topic's subscription entirely, then come back. The old
	// redis goroutine must be gone or the second client hears everything
	// twice.
	first := broker.Subscribe(topic)
	time.Sleep(100 * time.Millisecond)
	broker.Unsubscribe(first)

	second := broker.Subscribe(topic)
	defer broker.Unsubscribe(second)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, broker.Publish(context.Background(), topic, testEvent(t, "msg-1")))

	receiveOne(t, second)
	select {
	case event := <-second.Events:
		t.Fatalf("event delivered twice: %s", event.Data)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBroker_ClientCountTracksSubscriptions(t *testing.T) {
	broker := setupTestBroker(t)
	topic := TopicSession(uuid.NewString())

	first := broker.Subscribe(topic)
	second := broker.Subscribe(topic)
	assert.Equal(t, 2, broker.ClientCount(topic))

	broker.Unsubscribe(first)
	assert.Equal(t, 1, broker.ClientCount(topic))

	broker.Unsubscribe(second)
	assert.Equal(t, 0, broker.ClientCount(topic))
}
