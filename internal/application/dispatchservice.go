package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
)

// ErrMemberNotFound is returned when a single-member operation targets an ID
// absent from the roster.
var ErrMemberNotFound = errors.New("member not found")

// TokenRefresher triggers an on-demand credential refresh pass. Satisfied by
// *RefreshService; dispatch runs refresh immediately beforehand since
// invitations require currently-valid access tokens.
type TokenRefresher interface {
	RefreshNow(ctx context.Context) (model.RefreshReport, error)
}

// DispatchService applies group-membership invitations across the roster
// without exceeding the platform's rate tolerance: fixed-size batches, full
// concurrency within a batch, a fixed pause between batches. Per-member
// failures are isolated; only aggregate counts surface.
type DispatchService struct {
	members   driven.MemberStore
	platform  driven.PlatformClient
	runs      driven.RunStore
	refresher TokenRefresher
	groupID   string
	batchSize int
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration)
}

// NewDispatchService creates a DispatchService with all required dependencies.
func NewDispatchService(
	members driven.MemberStore,
	platform driven.PlatformClient,
	runs driven.RunStore,
	refresher TokenRefresher,
	groupID string,
	batchSize int,
	interBatchDelay time.Duration,
) *DispatchService {
	if batchSize < 1 {
		batchSize = 1
	}
	return &DispatchService{
		members:   members,
		platform:  platform,
		runs:      runs,
		refresher: refresher,
		groupID:   groupID,
		batchSize: batchSize,
		delay:     interBatchDelay,
		sleep:     sleepContext,
	}
}

// InviteAll refreshes every credential, then dispatches a group invitation
// for the entire roster. The run always completes to exhaustion; the only
// error returned is context cancellation while waiting on the refresher.
func (s *DispatchService) InviteAll(ctx context.Context) (model.DispatchReport, error) {
	if _, err := s.refresher.RefreshNow(ctx); err != nil {
		return model.DispatchReport{}, fmt.Errorf("pre-dispatch refresh: %w", err)
	}

	members := sortedMembers(s.members.Load(ctx))

	start := time.Now()
	report := s.dispatch(ctx, members)
	s.recordRun(ctx, len(members), report, start)

	slog.Info("dispatch run complete",
		"group", s.groupID,
		"population", len(members),
		"success", report.Success,
		"failed", report.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return report, nil
}

// InviteOne dispatches a single invitation outside the batch machinery.
func (s *DispatchService) InviteOne(ctx context.Context, memberID string) error {
	members := s.members.Load(ctx)
	m, ok := members[memberID]
	if !ok {
		return ErrMemberNotFound
	}
	if !m.Invitable() {
		return fmt.Errorf("member %s holds no access token", memberID)
	}

	if err := s.platform.AddGroupMember(ctx, s.groupID, m.ID, m.AccessToken); err != nil {
		return fmt.Errorf("invite member %s: %w", memberID, err)
	}
	return nil
}

// dispatch partitions members into contiguous batches of batchSize, issues
// every call in a batch concurrently, waits for the batch to fully settle,
// and pauses between batches (never after the last). A member lacking an
// access token is counted failed with no call attempted; any call failure is
// logged, counted, and never aborts the batch or the run.
func (s *DispatchService) dispatch(ctx context.Context, members []model.Member) model.DispatchReport {
	var success, failed atomic.Int64

	for start := 0; start < len(members); start += s.batchSize {
		end := start + s.batchSize
		if end > len(members) {
			end = len(members)
		}

		var g errgroup.Group
		for _, m := range members[start:end] {
			g.Go(func() error {
				if !m.Invitable() {
					failed.Add(1)
					slog.Warn("skipping member without access token", "member", m.ID)
					return nil
				}
				if err := s.platform.AddGroupMember(ctx, s.groupID, m.ID, m.AccessToken); err != nil {
					failed.Add(1)
					slog.Error("invite failed", "member", m.ID, "group", s.groupID, "error", err)
					return nil
				}
				success.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(members) {
			s.sleep(ctx, s.delay)
		}
	}

	return model.DispatchReport{
		Success: int(success.Load()),
		Failed:  int(failed.Load()),
	}
}

// recordRun persists the run to the run history. Best effort.
func (s *DispatchService) recordRun(ctx context.Context, population int, report model.DispatchReport, start time.Time) {
	run := model.Run{
		ID:         uuid.NewString(),
		Kind:       model.RunKindDispatch,
		GroupID:    s.groupID,
		Total:      population,
		Succeeded:  report.Success,
		Failed:     report.Failed,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	if err := s.runs.Record(ctx, run); err != nil {
		slog.Error("record dispatch run failed", "run", run.ID, "error", err)
	}
}

// sleepContext pauses for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sortedMembers flattens the roster map into a deterministic, ID-ordered slice.
func sortedMembers(members map[string]model.Member) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
