package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/webatelier/livechat-server-go/internal/database"
	"github.com/webatelier/livechat-server-go/internal/model"
)

// SessionUnread is one row of the grouped unread-count projection.
type SessionUnread struct {
	SessionID string `db:"session_id"`
	Unread    int    `db:"unread"`
}

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	Append(ctx context.Context, params model.AppendMessageParams) (*model.ChatMessage, error)
	MarkSessionRead(ctx context.Context, sessionID string) (int64, error)
	MarkRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, sessionID string) (int, error)
	UnreadBySession(ctx context.Context, sessionIDs []string) ([]SessionUnread, error)
	LastBySession(ctx context.Context, sessionIDs []string) ([]model.ChatMessage, error)
	AverageFirstResponseSeconds(ctx context.Context) (float64, int, error)
	// WithTx returns a repository scoped to the given transaction.
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM chat_messages WHERE id = $1`, id)
	return handleNotFound(&msg, err)
}

// ListBySession returns the full ordered log for a session. Ties on
// created_at are broken by insertion id so the order is total.
func (r *messageRepo) ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	return msgs, err
}

func (r *messageRepo) Append(ctx context.Context, params model.AppendMessageParams) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO chat_messages
			(id, session_id, sender_name, sender_identity, body, is_user, is_read, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.ID, params.SessionID, params.SenderName, params.SenderIdentity,
		params.Body, params.IsUser, params.IsRead, params.Meta)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkSessionRead marks every unread visitor message in the session as read
// and returns how many rows changed. Running it again is a no-op.
func (r *messageRepo) MarkSessionRead(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE session_id = $1 AND is_user AND NOT is_read
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageRepo) MarkRead(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE WHERE id = $1 AND NOT is_read
	`, id)
	return err
}

func (r *messageRepo) CountUnread(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages
		WHERE session_id = $1 AND is_user AND NOT is_read
	`, sessionID)
	return count, err
}

func (r *messageRepo) UnreadBySession(ctx context.Context, sessionIDs []string) ([]SessionUnread, error) {
	var rows []SessionUnread
	err := r.db.SelectContext(ctx, &rows, `
		SELECT session_id, COUNT(*) AS unread FROM chat_messages
		WHERE session_id = ANY($1) AND is_user AND NOT is_read
		GROUP BY session_id
	`, pq.Array(sessionIDs))
	return rows, err
}

// LastBySession returns the newest message of each given session.
func (r *messageRepo) LastBySession(ctx context.Context, sessionIDs []string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT DISTINCT ON (session_id) * FROM chat_messages
		WHERE session_id = ANY($1)
		ORDER BY session_id, created_at DESC, id DESC
	`, pq.Array(sessionIDs))
	return msgs, err
}

// AverageFirstResponseSeconds computes, over sessions with at least one
// normal agent reply, the mean gap between the first visitor message and the
// first agent message. System messages do not count as replies.
func (r *messageRepo) AverageFirstResponseSeconds(ctx context.Context) (float64, int, error) {
	var row struct {
		Avg     sql.NullFloat64 `db:"avg_seconds"`
		Samples int             `db:"samples"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			AVG(EXTRACT(EPOCH FROM (a.first_agent - v.first_visitor))) AS avg_seconds,
			COUNT(*) AS samples
		FROM (
			SELECT session_id, MIN(created_at) AS first_agent
			FROM chat_messages
			WHERE NOT is_user AND meta->>'kind' = 'normal'
			GROUP BY session_id
		) a
		JOIN (
			SELECT session_id, MIN(created_at) AS first_visitor
			FROM chat_messages
			WHERE is_user
			GROUP BY session_id
		) v USING (session_id)
	`)
	if err != nil {
		return 0, 0, err
	}
	return row.Avg.Float64, row.Samples, nil
}
