package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/repository"
)

// SessionSummary is the per-session dashboard projection. It is rebuilt from
// the message log on every request, so unread counts never drift.
type SessionSummary struct {
	SessionID       string              `json:"sessionId"`
	VisitorName     string              `json:"visitorName"`
	VisitorEmail    string              `json:"visitorEmail"`
	Status          model.SessionStatus `json:"status"`
	UnreadCount     int                 `json:"unreadCount"`
	Preview         string              `json:"preview"`
	LastMessageAt   *time.Time          `json:"lastMessageAt,omitempty"`
	DurationSeconds int64               `json:"durationSeconds"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// GlobalStats is the slow-moving aggregate across all sessions. It is served
// from a cache refreshed on an interval; staleness up to that interval is an
// accepted trade-off.
type GlobalStats struct {
	TotalSessions    int `json:"totalSessions"`
	PendingSessions  int `json:"pendingSessions"`
	ActiveSessions   int `json:"activeSessions"`
	ResolvedSessions int `json:"resolvedSessions"`

	// AvgResponseSeconds is the mean gap between the first visitor message
	// and the first agent reply, over sessions that have one.
	AvgResponseSeconds float64   `json:"avgResponseSeconds"`
	RespondedSessions  int       `json:"respondedSessions"`
	RefreshedAt        time.Time `json:"refreshedAt"`
}

type DashboardService struct {
	sessionRepo     repository.SessionRepository
	messageRepo     repository.MessageRepository
	previewMaxRunes int

	mu     sync.RWMutex
	cached *GlobalStats
}

func NewDashboardService(
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	previewMaxRunes int,
) *DashboardService {
	return &DashboardService{
		sessionRepo:     sessionRepo,
		messageRepo:     messageRepo,
		previewMaxRunes: previewMaxRunes,
	}
}

// SessionSummaries lists sessions (updated_at descending) with their unread
// counts, last-message previews and running duration.
func (s *DashboardService) SessionSummaries(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]SessionSummary, int, error) {
	sessions, err := s.sessionRepo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	total, err := s.sessionRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}

	unread := make(map[string]int)
	last := make(map[string]model.ChatMessage)

	if len(ids) > 0 {
		unreadRows, err := s.messageRepo.UnreadBySession(ctx, ids)
		if err != nil {
			return nil, 0, fmt.Errorf("unread counts: %w", err)
		}
		for _, row := range unreadRows {
			unread[row.SessionID] = row.Unread
		}

		lastMsgs, err := s.messageRepo.LastBySession(ctx, ids)
		if err != nil {
			return nil, 0, fmt.Errorf("last messages: %w", err)
		}
		for _, msg := range lastMsgs {
			last[msg.SessionID] = msg
		}
	}

	now := time.Now()
	summaries := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		summary := SessionSummary{
			SessionID:       sess.ID,
			VisitorName:     sess.VisitorName,
			VisitorEmail:    sess.VisitorEmail,
			Status:          sess.Status,
			UnreadCount:     unread[sess.ID],
			DurationSeconds: int64(now.Sub(sess.CreatedAt).Seconds()),
			CreatedAt:       sess.CreatedAt,
			UpdatedAt:       sess.UpdatedAt,
		}
		if msg, ok := last[sess.ID]; ok {
			summary.Preview = truncatePreview(msg.Body, s.previewMaxRunes)
			createdAt := msg.CreatedAt
			summary.LastMessageAt = &createdAt
		}
		summaries[i] = summary
	}

	return summaries, total, nil
}

// Refresh recomputes the global aggregate and swaps it into the cache.
func (s *DashboardService) Refresh(ctx context.Context) (*GlobalStats, error) {
	stats := &GlobalStats{RefreshedAt: time.Now()}

	total, err := s.sessionRepo.Count(ctx, model.SessionFilter{})
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	stats.TotalSessions = total

	pending, err := s.sessionRepo.CountByStatus(ctx, model.SessionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("count pending sessions: %w", err)
	}
	stats.PendingSessions = pending

	active, err := s.sessionRepo.CountByStatus(ctx, model.SessionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}
	stats.ActiveSessions = active

	resolved, err := s.sessionRepo.CountByStatus(ctx, model.SessionStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("count resolved sessions: %w", err)
	}
	stats.ResolvedSessions = resolved

	avg, samples, err := s.messageRepo.AverageFirstResponseSeconds(ctx)
	if err != nil {
		return nil, fmt.Errorf("average response time: %w", err)
	}
	stats.AvgResponseSeconds = avg
	stats.RespondedSessions = samples

	s.mu.Lock()
	s.cached = stats
	s.mu.Unlock()

	return stats, nil
}

// GlobalStats returns the cached aggregate, computing it on first use.
func (s *DashboardService) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	if cached != nil {
		return cached, nil
	}
	return s.Refresh(ctx)
}

func truncatePreview(body string, maxRunes int) string {
	runes := []rune(body)
	if len(runes) <= maxRunes {
		return body
	}
	return string(runes[:maxRunes]) + "…"
}
