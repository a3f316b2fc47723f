package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webatelier/livechat-server-go/internal/service"
)

// StatsRefreshJob keeps the dashboard's global aggregate warm. Per-session
// projections track the message log directly; only this slow-moving global
// view runs on a cadence.
type StatsRefreshJob struct {
	dashboard *service.DashboardService
	interval  time.Duration
	done      chan struct{}
}

func NewStatsRefreshJob(dashboard *service.DashboardService, interval time.Duration) *StatsRefreshJob {
	return &StatsRefreshJob{
		dashboard: dashboard,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *StatsRefreshJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("stats refresh job started")
}

func (j *StatsRefreshJob) Stop() {
	close(j.done)
	log.Info().Msg("stats refresh job stopped")
}

func (j *StatsRefreshJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.refresh()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *StatsRefreshJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := j.dashboard.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh dashboard stats")
		return
	}

	log.Debug().
		Int("total", stats.TotalSessions).
		Int("pending", stats.PendingSessions).
		Int("active", stats.ActiveSessions).
		Msg("dashboard stats refreshed")
}
