package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/webatelier/livechat-server-go/internal/database"
	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/repository"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

const systemSenderName = "Support"

// Transactor runs a function inside a single store transaction.
// *database.DB satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type StartSessionParams struct {
	VisitorName     string
	VisitorEmail    string
	VisitorPhone    *string
	VisitorCompany  *string
	InquiryCategory *string
}

type SessionService struct {
	store       Transactor
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	events      EventPublisher
}

func NewSessionService(
	store Transactor,
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	events EventPublisher,
) *SessionService {
	return &SessionService{
		store:       store,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		events:      events,
	}
}

// Start opens a new pending session for a visitor.
func (s *SessionService) Start(ctx context.Context, params StartSessionParams) (*model.ChatSession, error) {
	name := strings.TrimSpace(params.VisitorName)
	if name == "" {
		return nil, apperrors.MissingRequired("visitorName")
	}
	email := strings.TrimSpace(params.VisitorEmail)
	if email == "" {
		return nil, apperrors.MissingRequired("visitorEmail")
	}

	sess, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		ID:              uuid.NewString(),
		VisitorName:     name,
		VisitorEmail:    email,
		VisitorPhone:    params.VisitorPhone,
		VisitorCompany:  params.VisitorCompany,
		InquiryCategory: params.InquiryCategory,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("sessionId", sess.ID).
		Str("visitorName", sess.VisitorName).
		Msg("chat session started")

	s.publishSession(ctx, sess)
	return sess, nil
}

func (s *SessionService) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.sessionRepo.FindByID(ctx, id)
}

func (s *SessionService) List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.ChatSession, int, error) {
	sessions, err := s.sessionRepo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	total, err := s.sessionRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Close resolves a session and appends the single system message announcing
// it. Closing an already-resolved session is rejected so the system message
// cannot be duplicated.
func (s *SessionService) Close(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Session")
	}
	if sess.Status == model.SessionStatusResolved {
		return nil, apperrors.AlreadyResolved()
	}

	// The status flip and the system message commit together: a close that
	// failed halfway would otherwise leave a resolved session with no
	// system_close message, and the resolved gate above would block retries.
	var (
		updated *model.ChatSession
		msg     *model.ChatMessage
	)
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		updated, txErr = s.sessionRepo.WithTx(tx).UpdateStatus(ctx, sessionID, model.SessionStatusResolved)
		if txErr != nil {
			return fmt.Errorf("resolve session: %w", txErr)
		}
		if updated == nil {
			return apperrors.NotFound("Session")
		}

		msg, txErr = s.messageRepo.WithTx(tx).Append(ctx, model.AppendMessageParams{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			SenderName:     systemSenderName,
			SenderIdentity: "system",
			Body:           "This conversation has been resolved. Feel free to start a new chat if you need anything else.",
			IsUser:         false,
			IsRead:         true,
			Meta:           model.SystemCloseMeta().Value(),
		})
		if txErr != nil {
			return fmt.Errorf("append close message: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sessionID).
		Msg("chat session resolved")

	s.publishMessage(ctx, msg)
	s.publishSession(ctx, updated)
	return updated, nil
}

// OverrideStatus is the manual agent escape hatch: any status can be forced
// from any status. It only ever touches status and updated_at, never the
// message history, and appends nothing.
func (s *SessionService) OverrideStatus(ctx context.Context, sessionID string, status model.SessionStatus) (*model.ChatSession, error) {
	if !model.ValidStatus(status) {
		return nil, apperrors.InvalidInput("status", string(status))
	}

	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Session")
	}
	if sess.Status == status {
		return sess, nil
	}

	updated, err := s.sessionRepo.UpdateStatus(ctx, sessionID, status)
	if err != nil {
		return nil, fmt.Errorf("override status: %w", err)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("from", string(sess.Status)).
		Str("to", string(status)).
		Msg("session status overridden")

	s.publishSession(ctx, updated)
	return updated, nil
}

func (s *SessionService) publishSession(ctx context.Context, sess *model.ChatSession) {
	event := sse.Event{Type: sse.EventSession, Data: sess.ToEventData()}
	if err := s.events.Publish(ctx, sse.TopicSession(sess.ID), event); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to publish session event")
	}
	if err := s.events.Publish(ctx, sse.TopicDashboard, event); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to publish dashboard session event")
	}
}

func (s *SessionService) publishMessage(ctx context.Context, msg *model.ChatMessage) {
	event := sse.Event{Type: sse.EventMessage, Data: msg.ToEventData()}
	if err := s.events.Publish(ctx, sse.TopicSession(msg.SessionID), event); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to publish message event")
	}
	if err := s.events.Publish(ctx, sse.TopicDashboard, event); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to publish dashboard message event")
	}
}
