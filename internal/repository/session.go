package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/webatelier/livechat-server-go/internal/database"
	"github.com/webatelier/livechat-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.ChatSession, error)
	Count(ctx context.Context, filter model.SessionFilter) (int, error)
	CountByStatus(ctx context.Context, status model.SessionStatus) (int, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error)
	UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.ChatSession, error)
	Touch(ctx context.Context, id string) error
	// WithTx returns a repository scoped to the given transaction.
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := r.db.GetContext(ctx, &sess, `SELECT * FROM chat_sessions WHERE id = $1`, id)
	return handleNotFound(&sess, err)
}

func (r *sessionRepo) List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession

	if filter.Status != nil {
		err := r.db.SelectContext(ctx, &sessions, `
			SELECT * FROM chat_sessions
			WHERE status = $1
			ORDER BY updated_at DESC
			LIMIT $2 OFFSET $3
		`, *filter.Status, limit, offset)
		return sessions, err
	}

	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return sessions, err
}

func (r *sessionRepo) Count(ctx context.Context, filter model.SessionFilter) (int, error) {
	var count int
	if filter.Status != nil {
		err := r.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM chat_sessions WHERE status = $1
		`, *filter.Status)
		return count, err
	}
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_sessions`)
	return count, err
}

func (r *sessionRepo) CountByStatus(ctx context.Context, status model.SessionStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_sessions WHERE status = $1
	`, status)
	return count, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := r.db.GetContext(ctx, &sess, `
		INSERT INTO chat_sessions
			(id, visitor_name, visitor_email, visitor_phone, visitor_company, inquiry_category, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING *
	`, params.ID, params.VisitorName, params.VisitorEmail, params.VisitorPhone,
		params.VisitorCompany, params.InquiryCategory)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateStatus is last-write-wins: concurrent agent consoles may race on the
// same session and the later write simply sticks.
func (r *sessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := r.db.GetContext(ctx, &sess, `
		UPDATE chat_sessions SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, status)
	return handleNotFound(&sess, err)
}

func (r *sessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1
	`, id)
	return err
}
