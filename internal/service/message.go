package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/repository"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

// EventPublisher is the slice of the fan-out broker the services need:
// pushing events at a topic. Delivery is at-least-once downstream, so
// everything published here must be safe to observe twice.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

type AppendParams struct {
	SessionID      string
	SenderName     string
	SenderIdentity string
	Body           string
	IsUser         bool
}

type MessageService struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	events      EventPublisher
}

func NewMessageService(
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	events EventPublisher,
) *MessageService {
	return &MessageService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		events:      events,
	}
}

// Append records one utterance in the session's log. The message is only
// returned once the store has confirmed the write; callers must not echo it
// before that. The first agent message on a pending session promotes it to
// active as a side effect.
func (s *MessageService) Append(ctx context.Context, params AppendParams) (*model.ChatMessage, error) {
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, apperrors.EmptyMessage()
	}

	sess, err := s.sessionRepo.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Session")
	}

	meta := model.NormalMeta("")
	if !params.IsUser {
		meta = model.NormalMeta(params.SenderName)
	}

	msg, err := s.messageRepo.Append(ctx, model.AppendMessageParams{
		ID:             uuid.NewString(),
		SessionID:      params.SessionID,
		SenderName:     params.SenderName,
		SenderIdentity: params.SenderIdentity,
		Body:           body,
		IsUser:         params.IsUser,
		// Agent and system messages are already "read" by their author;
		// visitor messages start unread until an agent sees them.
		IsRead: !params.IsUser,
		Meta:   meta.Value(),
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("sessionId", params.SessionID).
		Bool("isUser", params.IsUser).
		Msg("message appended")

	if !params.IsUser && model.CanTransition(sess.Status, model.SessionStatusActive) {
		if updated, err := s.sessionRepo.UpdateStatus(ctx, params.SessionID, model.SessionStatusActive); err != nil {
			log.Error().Err(err).Str("sessionId", params.SessionID).Msg("failed to activate session")
		} else if updated != nil {
			s.publishSession(ctx, updated)
		}
	} else {
		if err := s.sessionRepo.Touch(ctx, params.SessionID); err != nil {
			log.Warn().Err(err).Str("sessionId", params.SessionID).Msg("failed to touch session")
		}
	}

	s.publishMessage(ctx, msg)
	return msg, nil
}

// ListMessages returns the session's log ordered by created_at ascending.
func (s *MessageService) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.messageRepo.ListBySession(ctx, sessionID)
}

// MarkSessionRead marks all unread visitor messages in the session as read,
// the bulk path taken when an agent opens a conversation. Idempotent.
func (s *MessageService) MarkSessionRead(ctx context.Context, sessionID string) (int64, error) {
	count, err := s.messageRepo.MarkSessionRead(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("mark session read: %w", err)
	}
	if count > 0 {
		log.Debug().
			Str("sessionId", sessionID).
			Int64("count", count).
			Msg("messages marked read")
	}
	return count, nil
}

// MarkMessageRead marks a single message as read, the incremental path for a
// visitor message arriving while the agent has the session open. Idempotent.
func (s *MessageService) MarkMessageRead(ctx context.Context, messageID string) error {
	msg, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("find message: %w", err)
	}
	if msg == nil {
		return apperrors.NotFound("Message")
	}
	if err := s.messageRepo.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadCount recomputes the unread visitor-message count from the log.
func (s *MessageService) UnreadCount(ctx context.Context, sessionID string) (int, error) {
	return s.messageRepo.CountUnread(ctx, sessionID)
}

func (s *MessageService) publishSession(ctx context.Context, sess *model.ChatSession) {
	event := sse.Event{Type: sse.EventSession, Data: sess.ToEventData()}
	if err := s.events.Publish(ctx, sse.TopicSession(sess.ID), event); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to publish session event")
	}
	if err := s.events.Publish(ctx, sse.TopicDashboard, event); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to publish dashboard session event")
	}
}

func (s *MessageService) publishMessage(ctx context.Context, msg *model.ChatMessage) {
	event := sse.Event{Type: sse.EventMessage, Data: msg.ToEventData()}
	if err := s.events.Publish(ctx, sse.TopicSession(msg.SessionID), event); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to publish message event")
	}
	if err := s.events.Publish(ctx, sse.TopicDashboard, event); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to publish dashboard message event")
	}
}
