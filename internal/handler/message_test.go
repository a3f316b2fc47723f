package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/service"
)

func TestMessageHandler_MarkRead(t *testing.T) {
	newFixture := func() (*mockMessageRepo, *MessageHandler) {
		messageRepo := new(mockMessageRepo)
		svc := service.NewMessageService(new(mockSessionRepo), messageRepo, noopPublisher{})
		return messageRepo, NewMessageHandler(svc)
	}

	t.Run("marks a single message read", func(t *testing.T) {
		messageRepo, h := newFixture()

		messageRepo.On("FindByID", mock.Anything, "msg-1").Return(&model.ChatMessage{
			ID:     "msg-1",
			IsUser: true,
		}, nil)
		messageRepo.On("MarkRead", mock.Anything, "msg-1").Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/msg-1/read", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		messageRepo.AssertExpectations(t)
	})

	t.Run("unknown message returns 404", func(t *testing.T) {
		messageRepo, h := newFixture()

		messageRepo.On("FindByID", mock.Anything, "msg-missing").Return(nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/msg-missing/read", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
