package service

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/webatelier/livechat-server-go/internal/database"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/repository"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

// stubTransactor runs the function directly; the mock repos ignore the
// transaction handle.
type stubTransactor struct{}

func (stubTransactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *mockSessionRepo) List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.ChatSession, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatSession), args.Error(1)
}

func (m *mockSessionRepo) Count(ctx context.Context, filter model.SessionFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockSessionRepo) CountByStatus(ctx context.Context, status model.SessionStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *mockSessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.ChatSession, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *mockSessionRepo) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return m
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) Append(ctx context.Context, params model.AppendMessageParams) (*model.ChatMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) MarkSessionRead(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMessageRepo) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMessageRepo) CountUnread(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) UnreadBySession(ctx context.Context, sessionIDs []string) ([]repository.SessionUnread, error) {
	args := m.Called(ctx, sessionIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.SessionUnread), args.Error(1)
}

func (m *mockMessageRepo) LastBySession(ctx context.Context, sessionIDs []string) ([]model.ChatMessage, error) {
	args := m.Called(ctx, sessionIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) AverageFirstResponseSeconds(ctx context.Context) (float64, int, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

// recordingPublisher captures published events per topic so tests can assert
// what went out and where.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]sse.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]sse.Event)}
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[topic] = append(p.events[topic], event)
	return nil
}

func (p *recordingPublisher) published(topic string) []sse.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[topic]
}
