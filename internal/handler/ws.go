package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/fanout"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/presence"
	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
	"github.com/webatelier/livechat-server-go/internal/service"
)

// WSHandler serves the embedded visitor widget's realtime channel. Outbound
// frames carry message/session/typing events; the only inbound frames are
// typing signals.
type WSHandler struct {
	feeds          *fanout.Manager
	redis          *redisclient.Client
	sessionService *service.SessionService
	typing         presence.SignalPublisher
	typingIdle     time.Duration
	typingTimeout  time.Duration
}

func NewWSHandler(
	feeds *fanout.Manager,
	redisClient *redisclient.Client,
	sessionService *service.SessionService,
	typing presence.SignalPublisher,
	typingIdle time.Duration,
	typingTimeout time.Duration,
) *WSHandler {
	return &WSHandler{
		feeds:          feeds,
		redis:          redisClient,
		sessionService: sessionService,
		typing:         typing,
		typingIdle:     typingIdle,
		typingTimeout:  typingTimeout,
	}
}

type wsFrame struct {
	Type     string              `json:"type"`
	Messages []model.ChatMessage `json:"messages,omitempty"`
	Message  *model.ChatMessage  `json:"message,omitempty"`
	Session  *model.ChatSession  `json:"session,omitempty"`
	Typing   *presence.Signal    `json:"typing,omitempty"`
}

type wsInbound struct {
	Type      string `json:"type"`
	ActorName string `json:"actorName"`
}

// GET /v1/sessions/{sessionID}/ws
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	sess, err := h.sessionService.FindByID(ctx, sessionID)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	if sess == nil {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("sessionId", sessionID).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	log.Info().Str("sessionId", sessionID).Msg("widget websocket connected")

	frames := make(chan wsFrame, 64)
	push := func(frame wsFrame) {
		select {
		case frames <- frame:
		default:
			log.Warn().Str("sessionId", sessionID).Msg("widget frame buffer full, dropping frame")
		}
	}

	feed := h.feeds.Open(ctx, sessionID, fanout.Callbacks{
		OnReset: func(messages []model.ChatMessage) {
			push(wsFrame{Type: "reset", Messages: messages})
		},
		OnMessage: func(message model.ChatMessage) {
			push(wsFrame{Type: "message", Message: &message})
		},
		OnSession: func(session model.ChatSession) {
			push(wsFrame{Type: "session", Session: &session})
		},
	})
	defer feed.Close()

	watcher := presence.NewWatcher(h.redis, sessionID, h.typingTimeout, func(signal presence.Signal) {
		s := signal
		push(wsFrame{Type: "typing", Typing: &s})
	})
	defer watcher.Close()

	go h.readLoop(ctx, conn, sessionID)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case frame := <-frames:
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				log.Debug().Err(err).Str("sessionId", sessionID).Msg("widget websocket write failed")
				return
			}
		}
	}
}

// readLoop accepts keystroke and sent frames from the widget. A per-connection
// tracker debounces raw keystrokes into start/stop typing signals, so the
// widget never has to manage the idle window itself. Anything else is ignored;
// message sending stays on the HTTP API so the widget only renders messages
// the store has confirmed.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	var tracker *presence.Tracker
	defer func() {
		if tracker != nil {
			tracker.Sent(context.Background())
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var inbound wsInbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			continue
		}

		switch inbound.Type {
		case "keystroke":
			if tracker == nil {
				tracker = presence.NewTracker(h.typing, sessionID, inbound.ActorName, false, h.typingIdle)
			}
			tracker.Keystroke(ctx)
		case "sent":
			if tracker != nil {
				tracker.Sent(ctx)
			}
		}
	}
}
