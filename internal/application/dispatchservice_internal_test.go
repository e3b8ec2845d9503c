package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

type stubStore struct {
	members map[string]model.Member
}

func (s *stubStore) Load(_ context.Context) map[string]model.Member {
	out := make(map[string]model.Member, len(s.members))
	for id, m := range s.members {
		out[id] = m
	}
	return out
}

func (s *stubStore) Save(_ context.Context, members map[string]model.Member) { s.members = members }
func (s *stubStore) Upsert(_ context.Context, m model.Member)               { s.members[m.ID] = m }
func (s *stubStore) Remove(_ context.Context, id string) bool {
	_, ok := s.members[id]
	delete(s.members, id)
	return ok
}
func (s *stubStore) Clear(_ context.Context) int {
	n := len(s.members)
	s.members = map[string]model.Member{}
	return n
}

func (s *stubStore) Sweep(_ context.Context) int                  { return 0 }
func (s *stubStore) ReplaceAll(_ context.Context, _ []byte) error { return nil }

type stubPlatform struct {
	mu      sync.Mutex
	addErr  func(memberID string) error
	invited []string
}

func (p *stubPlatform) AuthCodeURL(_ string) string { return "" }

func (p *stubPlatform) ExchangeCode(_ context.Context, _ string) (model.TokenPair, error) {
	return model.TokenPair{}, errors.New("not implemented")
}
func (p *stubPlatform) RefreshToken(_ context.Context, _ string) (model.TokenPair, error) {
	return model.TokenPair{}, errors.New("not implemented")
}
func (p *stubPlatform) Identity(_ context.Context, _ string) (model.Identity, error) {
	return model.Identity{}, errors.New("not implemented")
}
func (p *stubPlatform) AddGroupMember(_ context.Context, _, memberID, _ string) error {
	p.mu.Lock()
	p.invited = append(p.invited, memberID)
	p.mu.Unlock()
	if p.addErr == nil {
		return nil
	}
	return p.addErr(memberID)
}
func (p *stubPlatform) PostLogMessage(_ context.Context, _, _ string) error { return nil }

func (p *stubPlatform) invitedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.invited...)
}

type stubRunStore struct {
	runs []model.Run
}

func (s *stubRunStore) Record(_ context.Context, run model.Run) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *stubRunStore) ListRecent(_ context.Context, _ int) ([]model.Run, error) {
	return s.runs, nil
}

type stubRefresher struct {
	calls int
}

func (r *stubRefresher) RefreshNow(_ context.Context) (model.RefreshReport, error) {
	r.calls++
	return model.RefreshReport{}, nil
}

func population(n int) []model.Member {
	members := make([]model.Member, 0, n)
	for i := 0; i < n; i++ {
		members = append(members, model.Member{
			ID:           fmt.Sprintf("m%02d", i),
			AccessToken:  "at",
			RefreshToken: "rt",
		})
	}
	return members
}

func newDispatch(platform *stubPlatform, batchSize int) (*DispatchService, *[]time.Duration) {
	svc := NewDispatchService(
		&stubStore{members: map[string]model.Member{}},
		platform,
		&stubRunStore{},
		&stubRefresher{},
		"group-1",
		batchSize,
		7*time.Second,
	)

	sleeps := &[]time.Duration{}
	svc.sleep = func(_ context.Context, d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return svc, sleeps
}

func TestDispatch_BatchPartitionAndDelays(t *testing.T) {
	platform := &stubPlatform{}
	svc, sleeps := newDispatch(platform, 5)

	report := svc.dispatch(context.Background(), population(13))

	assert.Equal(t, 13, report.Success)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, platform.invitedIDs(), 13)

	// 13 records at batch size 5 make batches of 5, 5, 3 -- the delay runs
	// between batches only, so exactly twice.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 7*time.Second, (*sleeps)[0])
}

func TestDispatch_SingleBatchHasNoDelay(t *testing.T) {
	platform := &stubPlatform{}
	svc, sleeps := newDispatch(platform, 5)

	report := svc.dispatch(context.Background(), population(5))

	assert.Equal(t, 5, report.Success)
	assert.Empty(t, *sleeps)
}

func TestDispatch_EmptyPopulation(t *testing.T) {
	platform := &stubPlatform{}
	svc, sleeps := newDispatch(platform, 5)

	report := svc.dispatch(context.Background(), nil)

	assert.Equal(t, model.DispatchReport{}, report)
	assert.Empty(t, *sleeps)
	assert.Empty(t, platform.invitedIDs())
}

func TestDispatch_MissingAccessTokenCountedFailedWithoutCall(t *testing.T) {
	platform := &stubPlatform{}
	svc, _ := newDispatch(platform, 5)

	members := []model.Member{
		{ID: "ok", AccessToken: "at", RefreshToken: "rt"},
		{ID: "tokenless", RefreshToken: "rt"},
	}
	report := svc.dispatch(context.Background(), members)

	assert.Equal(t, 1, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"ok"}, platform.invitedIDs(), "no call attempted for tokenless member")
}

func TestDispatch_FailureIsolatedPerMember(t *testing.T) {
	platform := &stubPlatform{
		addErr: func(memberID string) error {
			if memberID == "m01" {
				return errors.New("boom")
			}
			return nil
		},
	}
	svc, _ := newDispatch(platform, 2)

	report := svc.dispatch(context.Background(), population(4))

	assert.Equal(t, 3, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, platform.invitedIDs(), 4, "failure does not abort the batch or later batches")
}

func TestInviteAll_RefreshesBeforeDispatch(t *testing.T) {
	store := &stubStore{members: map[string]model.Member{
		"a": {ID: "a", AccessToken: "at", RefreshToken: "rt"},
	}}
	platform := &stubPlatform{}
	runs := &stubRunStore{}
	refresher := &stubRefresher{}

	svc := NewDispatchService(store, platform, runs, refresher, "group-1", 5, 0)
	svc.sleep = func(context.Context, time.Duration) {}

	report, err := svc.InviteAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, refresher.calls, "credentials refreshed immediately before the run")
	assert.Equal(t, 1, report.Success)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, model.RunKindDispatch, runs.runs[0].Kind)
	assert.Equal(t, "group-1", runs.runs[0].GroupID)
	assert.Equal(t, 1, runs.runs[0].Total)
}

func TestInviteOne(t *testing.T) {
	store := &stubStore{members: map[string]model.Member{
		"a":         {ID: "a", AccessToken: "at", RefreshToken: "rt"},
		"tokenless": {ID: "tokenless", RefreshToken: "rt"},
	}}
	platform := &stubPlatform{}
	svc := NewDispatchService(store, platform, &stubRunStore{}, &stubRefresher{}, "group-1", 5, 0)

	require.NoError(t, svc.InviteOne(context.Background(), "a"))
	assert.Equal(t, []string{"a"}, platform.invitedIDs())

	assert.ErrorIs(t, svc.InviteOne(context.Background(), "missing"), ErrMemberNotFound)
	assert.Error(t, svc.InviteOne(context.Background(), "tokenless"))
}
