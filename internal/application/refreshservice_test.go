package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rosterhub/internal/application"
	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// --- Mock implementations ---

type memStore struct {
	mu      sync.Mutex
	members map[string]model.Member
	saves   int
}

func newMemStore(members ...model.Member) *memStore {
	m := &memStore{members: map[string]model.Member{}}
	for _, member := range members {
		m.members[member.ID] = member
	}
	return m
}

func (m *memStore) Load(_ context.Context) map[string]model.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Member, len(m.members))
	for id, member := range m.members {
		out[id] = member
	}
	return out
}

func (m *memStore) Save(_ context.Context, members map[string]model.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = members
	m.saves++
}

func (m *memStore) Upsert(ctx context.Context, member model.Member) {
	members := m.Load(ctx)
	members[member.ID] = member
	m.Save(ctx, members)
}

func (m *memStore) Remove(ctx context.Context, id string) bool {
	members := m.Load(ctx)
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	m.Save(ctx, members)
	return true
}

func (m *memStore) Clear(ctx context.Context) int {
	members := m.Load(ctx)
	n := len(members)
	m.Save(ctx, map[string]model.Member{})
	return n
}

func (m *memStore) Sweep(ctx context.Context) int {
	members := m.Load(ctx)
	var removed int
	for id, member := range members {
		if !member.Durable() || !member.Invitable() {
			delete(members, id)
			removed++
		}
	}
	m.Save(ctx, members)
	return removed
}

func (m *memStore) ReplaceAll(_ context.Context, _ []byte) error { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type mockPlatform struct {
	mu        sync.Mutex
	refreshFn func(refreshToken string) (model.TokenPair, error)
	addFn     func(groupID, memberID, accessToken string) error
	invited   []string
}

func (m *mockPlatform) AuthCodeURL(_ string) string { return "" }

func (m *mockPlatform) ExchangeCode(_ context.Context, _ string) (model.TokenPair, error) {
	return model.TokenPair{}, errors.New("not implemented")
}

func (m *mockPlatform) RefreshToken(_ context.Context, refreshToken string) (model.TokenPair, error) {
	if m.refreshFn == nil {
		return model.TokenPair{}, errors.New("no refresh configured")
	}
	return m.refreshFn(refreshToken)
}

func (m *mockPlatform) Identity(_ context.Context, _ string) (model.Identity, error) {
	return model.Identity{}, errors.New("not implemented")
}

func (m *mockPlatform) AddGroupMember(_ context.Context, groupID, memberID, accessToken string) error {
	m.mu.Lock()
	m.invited = append(m.invited, memberID)
	m.mu.Unlock()
	if m.addFn == nil {
		return nil
	}
	return m.addFn(groupID, memberID, accessToken)
}

func (m *mockPlatform) PostLogMessage(_ context.Context, _, _ string) error { return nil }

func (m *mockPlatform) invitedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invited...)
}

type mockRunStore struct {
	mu   sync.Mutex
	runs []model.Run
}

func (m *mockRunStore) Record(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockRunStore) ListRecent(_ context.Context, _ int) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Run(nil), m.runs...), nil
}

// --- Helper to run a single refresh pass through the service loop ---

func runRefreshPass(t *testing.T, store *memStore, platform *mockPlatform) (model.RefreshReport, *mockRunStore) {
	t.Helper()

	runs := &mockRunStore{}
	svc := application.NewRefreshService(store, platform, runs, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	report, err := svc.RefreshNow(ctx)
	require.NoError(t, err)

	cancel()
	<-done

	return report, runs
}

// --- Tests ---

func TestRefreshPass_EvictsNonDurableRecords(t *testing.T) {
	store := newMemStore(
		model.Member{ID: "durable", AccessToken: "at", RefreshToken: "rt"},
		model.Member{ID: "stray", AccessToken: "at"},
	)
	platform := &mockPlatform{
		refreshFn: func(_ string) (model.TokenPair, error) {
			return model.TokenPair{AccessToken: "at-new", RefreshToken: "rt-new"}, nil
		},
	}

	report, _ := runRefreshPass(t, store, platform)

	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, 1, report.Deleted)

	members := store.Load(context.Background())
	assert.Contains(t, members, "durable")
	assert.NotContains(t, members, "stray")
}

func TestRefreshPass_CountsSumToPopulation(t *testing.T) {
	store := newMemStore(
		model.Member{ID: "a", RefreshToken: "good"},
		model.Member{ID: "b", RefreshToken: "bad"},
		model.Member{ID: "c"},
		model.Member{ID: "d", RefreshToken: "good"},
	)
	platform := &mockPlatform{
		refreshFn: func(rt string) (model.TokenPair, error) {
			if rt == "bad" {
				return model.TokenPair{}, errors.New("rejected")
			}
			return model.TokenPair{AccessToken: "at"}, nil
		},
	}

	report, _ := runRefreshPass(t, store, platform)

	assert.Equal(t, 4, report.Refreshed+report.Deleted)
	assert.Equal(t, 2, report.Refreshed)
	assert.Equal(t, 2, report.Deleted)
}

func TestRefreshPass_RotatesTokensAndRetainsRefreshToken(t *testing.T) {
	store := newMemStore(
		model.Member{ID: "rotate", AccessToken: "old-at", RefreshToken: "rt-1"},
	)
	platform := &mockPlatform{
		refreshFn: func(_ string) (model.TokenPair, error) {
			// Platform rotated the access token but supplied no new refresh token.
			return model.TokenPair{AccessToken: "new-at"}, nil
		},
	}

	report, _ := runRefreshPass(t, store, platform)
	require.Equal(t, 1, report.Refreshed)

	got := store.Load(context.Background())["rotate"]
	assert.Equal(t, "new-at", got.AccessToken)
	assert.Equal(t, "rt-1", got.RefreshToken, "stored refresh token retained")
	assert.True(t, got.Durable())
}

func TestRefreshPass_MissingAccessTokenInResponseEvicts(t *testing.T) {
	store := newMemStore(model.Member{ID: "burned", RefreshToken: "rt"})
	platform := &mockPlatform{
		refreshFn: func(_ string) (model.TokenPair, error) {
			return model.TokenPair{RefreshToken: "rt-2"}, nil
		},
	}

	report, _ := runRefreshPass(t, store, platform)

	assert.Equal(t, 1, report.Deleted)
	assert.Empty(t, store.Load(context.Background()))
}

func TestRefreshPass_SavesExactlyOnce(t *testing.T) {
	store := newMemStore(
		model.Member{ID: "a", RefreshToken: "rt"},
		model.Member{ID: "b", RefreshToken: "rt"},
		model.Member{ID: "c"},
	)
	platform := &mockPlatform{
		refreshFn: func(_ string) (model.TokenPair, error) {
			return model.TokenPair{AccessToken: "at"}, nil
		},
	}

	runRefreshPass(t, store, platform)

	assert.Equal(t, 1, store.saveCount())
}

func TestRefreshPass_RecordsRunHistory(t *testing.T) {
	store := newMemStore(
		model.Member{ID: "a", RefreshToken: "rt"},
		model.Member{ID: "b"},
	)
	platform := &mockPlatform{
		refreshFn: func(_ string) (model.TokenPair, error) {
			return model.TokenPair{AccessToken: "at"}, nil
		},
	}

	_, runs := runRefreshPass(t, store, platform)

	recorded, err := runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, model.RunKindRefresh, recorded[0].Kind)
	assert.Equal(t, 2, recorded[0].Total)
	assert.Equal(t, 1, recorded[0].Succeeded)
	assert.Equal(t, 1, recorded[0].Failed)
}
