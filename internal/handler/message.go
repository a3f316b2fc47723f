package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/webatelier/livechat-server-go/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{messageID}/read", h.MarkRead)

	return r
}

// POST /v1/messages/{messageID}/read
//
// The incremental read path: a visitor message arriving while the agent has
// the session open is marked read on its own. Repeats are no-ops.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if err := h.messageService.MarkMessageRead(r.Context(), messageID); err != nil {
		log.Error().Err(err).Str("messageId", messageID).Msg("failed to mark message read")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
