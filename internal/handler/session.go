package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/presence"
	"github.com/webatelier/livechat-server-go/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	messageService *service.MessageService
	typing         presence.SignalPublisher
}

func NewSessionHandler(
	sessionService *service.SessionService,
	messageService *service.MessageService,
	typing presence.SignalPublisher,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		messageService: messageService,
		typing:         typing,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/", h.ListSessions)
	r.Get("/{sessionID}", h.GetSession)
	r.Post("/{sessionID}/close", h.CloseSession)
	r.Patch("/{sessionID}/status", h.OverrideStatus)
	r.Post("/{sessionID}/messages", h.AppendMessage)
	r.Post("/{sessionID}/read", h.MarkSessionRead)
	r.Post("/{sessionID}/typing", h.Typing)

	return r
}

type createSessionRequest struct {
	VisitorName     string  `json:"visitorName"`
	VisitorEmail    string  `json:"visitorEmail"`
	VisitorPhone    *string `json:"visitorPhone,omitempty"`
	VisitorCompany  *string `json:"visitorCompany,omitempty"`
	InquiryCategory *string `json:"inquiryCategory,omitempty"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	sess, err := h.sessionService.Start(r.Context(), service.StartSessionParams{
		VisitorName:     req.VisitorName,
		VisitorEmail:    req.VisitorEmail,
		VisitorPhone:    req.VisitorPhone,
		VisitorCompany:  req.VisitorCompany,
		InquiryCategory: req.InquiryCategory,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// GET /v1/sessions?status=&limit=&offset=
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	var filter model.SessionFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.SessionStatus(raw)
		if !model.ValidStatus(status) {
			writeError(w, apperrors.InvalidInput("status", raw))
			return
		}
		filter.Status = &status
	}

	sessions, total, err := h.sessionService.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"hasMore":  page.Offset+len(sessions) < total,
	})
}

// GET /v1/sessions/{sessionID}
//
// Opening a session is the agent's bulk read-marking path: every unread
// visitor message becomes read as part of serving the detail view.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.messageService.MarkSessionRead(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to mark session read")
		writeError(w, apperrors.Database(err))
		return
	}

	messages, err := h.messageService.ListMessages(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to list messages")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": messages,
	})
}

// POST /v1/sessions/{sessionID}/close
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessionService.Close(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to close session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

type overrideStatusRequest struct {
	Status model.SessionStatus `json:"status"`
}

// PATCH /v1/sessions/{sessionID}/status
func (h *SessionHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req overrideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	sess, err := h.sessionService.OverrideStatus(r.Context(), sessionID, req.Status)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to override status")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

type appendMessageRequest struct {
	SenderName     string `json:"senderName"`
	SenderIdentity string `json:"senderIdentity"`
	Body           string `json:"body"`
	IsUser         bool   `json:"isUser"`
}

// POST /v1/sessions/{sessionID}/messages
func (h *SessionHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	msg, err := h.messageService.Append(r.Context(), service.AppendParams{
		SessionID:      sessionID,
		SenderName:     req.SenderName,
		SenderIdentity: req.SenderIdentity,
		Body:           req.Body,
		IsUser:         req.IsUser,
	})
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to append message")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// POST /v1/sessions/{sessionID}/read
func (h *SessionHandler) MarkSessionRead(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	count, err := h.messageService.MarkSessionRead(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to mark session read")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"marked": count})
}

type typingRequest struct {
	ActorName string `json:"actorName"`
	IsAgent   bool   `json:"isAgent"`
	IsTyping  bool   `json:"isTyping"`
}

// POST /v1/sessions/{sessionID}/typing
//
// Always accepted: typing signals are fire-and-forget and a lost one is
// recovered by the receiver's implicit-stop timeout.
func (h *SessionHandler) Typing(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	h.typing.Publish(r.Context(), presence.Signal{
		SessionID: sessionID,
		ActorName: req.ActorName,
		IsAgent:   req.IsAgent,
		IsTyping:  req.IsTyping,
	})

	w.WriteHeader(http.StatusAccepted)
}
