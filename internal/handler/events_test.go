package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webatelier/livechat-server-go/internal/sse"
)

func TestEventsHandler_sendEvent(t *testing.T) {
	t.Run("formats SSE event correctly", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()
		flusher := rec // httptest.ResponseRecorder implements http.Flusher

		data := map[string]any{
			"sessionId": "sess-1",
			"status":    "active",
		}

		err := handler.sendEvent(rec, flusher, "connected", data)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, "data: ")
		assert.Contains(t, body, "sess-1")
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	t.Run("writes event and data lines", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()
		flusher := rec

		event := sse.Event{
			Type: sse.EventMessage,
			Data: json.RawMessage(`{"body": "hello"}`),
		}

		err := handler.sendRawEvent(rec, flusher, event)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: message\n")
		assert.Contains(t, body, `data: {"body": "hello"}`)
		assert.Contains(t, body, "\n\n")
	})

	t.Run("typing events carry the signal payload", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()

		event := sse.Event{
			Type: sse.EventTyping,
			Data: json.RawMessage(`{"sessionId":"sess-1","actorName":"Jamie","isTyping":true}`),
		}

		err := handler.sendRawEvent(rec, rec, event)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: typing\n")
		assert.Contains(t, body, `"actorName":"Jamie"`)
	})
}
