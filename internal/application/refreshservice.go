// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
)

// refreshRequest represents an on-demand refresh trigger.
type refreshRequest struct {
	done chan model.RefreshReport
}

// RefreshService keeps every durable member's access token valid and evicts
// unrecoverable records. It runs a full pass on a fixed interval and on
// demand; single-member refresh failures are absorbed and counted, never
// surfaced.
type RefreshService struct {
	members   driven.MemberStore
	platform  driven.PlatformClient
	runs      driven.RunStore
	interval  time.Duration
	refreshCh chan refreshRequest
}

// NewRefreshService creates a RefreshService with all required dependencies.
func NewRefreshService(
	members driven.MemberStore,
	platform driven.PlatformClient,
	runs driven.RunStore,
	interval time.Duration,
) *RefreshService {
	return &RefreshService{
		members:   members,
		platform:  platform,
		runs:      runs,
		interval:  interval,
		refreshCh: make(chan refreshRequest),
	}
}

// Start begins the refresh loop. The first pass runs one full interval after
// startup rather than immediately, so a restart does not hammer the token
// endpoint. Start also serves on-demand triggers, and blocks until the
// context is canceled.
func (s *RefreshService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh service stopped")
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		case req := <-s.refreshCh:
			req.done <- s.refreshAll(ctx)
		}
	}
}

// RefreshNow triggers a refresh pass immediately, bypassing the interval. It
// blocks until the pass completes or the context is canceled. The service
// loop must be running.
func (s *RefreshService) RefreshNow(ctx context.Context) (model.RefreshReport, error) {
	done := make(chan model.RefreshReport, 1)
	req := refreshRequest{done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return model.RefreshReport{}, ctx.Err()
	}

	select {
	case report := <-done:
		return report, nil
	case <-ctx.Done():
		return model.RefreshReport{}, ctx.Err()
	}
}

// refreshAll walks the full roster once. Per member: a record with no refresh
// token is evicted; a refresh call that fails or yields no new access token
// evicts the record (the refresh token is assumed burned); otherwise the
// access token is rotated and the refresh token replaced only when the
// platform supplied a new one. The store is saved exactly once at the end of
// the pass.
func (s *RefreshService) refreshAll(ctx context.Context) model.RefreshReport {
	start := time.Now()
	members := s.members.Load(ctx)
	population := len(members)

	var report model.RefreshReport
	for id, m := range members {
		if !m.Durable() {
			delete(members, id)
			report.Deleted++
			slog.Info("evicting member without refresh token", "member", id)
			continue
		}

		pair, err := s.platform.RefreshToken(ctx, m.RefreshToken)
		if err != nil || pair.AccessToken == "" {
			delete(members, id)
			report.Deleted++
			slog.Error("token refresh failed, evicting member", "member", id, "error", err)
			continue
		}

		m.AccessToken = pair.AccessToken
		if pair.RefreshToken != "" {
			m.RefreshToken = pair.RefreshToken
		}
		members[id] = m
		report.Refreshed++
	}

	s.members.Save(ctx, members)
	s.recordRun(ctx, population, report, start)

	slog.Info("refresh pass complete",
		"population", population,
		"refreshed", report.Refreshed,
		"deleted", report.Deleted,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return report
}

// recordRun persists the pass to the run history. Best effort.
func (s *RefreshService) recordRun(ctx context.Context, population int, report model.RefreshReport, start time.Time) {
	run := model.Run{
		ID:         uuid.NewString(),
		Kind:       model.RunKindRefresh,
		Total:      population,
		Succeeded:  report.Refreshed,
		Failed:     report.Deleted,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	if err := s.runs.Record(ctx, run); err != nil {
		slog.Error("record refresh run failed", "run", run.ID, "error", err)
	}
}
