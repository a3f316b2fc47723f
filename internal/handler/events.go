package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/presence"
	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
	"github.com/webatelier/livechat-server-go/internal/service"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

type EventsHandler struct {
	broker         *sse.Broker
	redis          *redisclient.Client
	sessionService *service.SessionService
	typingTimeout  time.Duration
}

func NewEventsHandler(
	broker *sse.Broker,
	redisClient *redisclient.Client,
	sessionService *service.SessionService,
	typingTimeout time.Duration,
) *EventsHandler {
	return &EventsHandler{
		broker:         broker,
		redis:          redisClient,
		sessionService: sessionService,
		typingTimeout:  typingTimeout,
	}
}

// GET /v1/sessions/{sessionID}/events
//
// Streams message, session and typing events for one session. Typing state
// passes through a presence monitor so subscribers see an implicit stop when
// a typist goes silent.
func (h *EventsHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	sess, err := h.sessionService.FindByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to find session")
		writeError(w, apperrors.Database(err))
		return
	}
	if sess == nil {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	typingEvents := make(chan sse.Event, 16)
	watcher := presence.NewWatcher(h.redis, sessionID, h.typingTimeout, func(signal presence.Signal) {
		data, err := json.Marshal(signal)
		if err != nil {
			return
		}
		select {
		case typingEvents <- sse.Event{Type: sse.EventTyping, Data: data}:
		default:
		}
	})
	defer watcher.Close()

	client := h.broker.Subscribe(sse.TopicSession(sessionID))
	defer h.broker.Unsubscribe(client)

	h.stream(w, r, flusher, client, typingEvents, map[string]any{
		"sessionId": sessionID,
		"status":    sess.Status,
	})
}

// GET /v1/events
//
// The dashboard firehose: every session's message and status events,
// unfiltered.
func (h *EventsHandler) DashboardEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	client := h.broker.Subscribe(sse.TopicDashboard)
	defer h.broker.Unsubscribe(client)

	h.stream(w, r, flusher, client, nil, map[string]any{"scope": "dashboard"})
}

func (h *EventsHandler) stream(
	w http.ResponseWriter,
	r *http.Request,
	flusher http.Flusher,
	client *sse.Client,
	extra <-chan sse.Event,
	hello map[string]any,
) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Info().Str("topic", client.Topic).Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", hello); err != nil {
		return
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("topic", client.Topic).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("topic", client.Topic).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case event := <-extra:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send typing event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("topic", client.Topic).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
