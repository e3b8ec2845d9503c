package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

func TestRunRepo_RecordAndListRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := model.Run{
			ID:         uuid.NewString(),
			Kind:       model.RunKindDispatch,
			GroupID:    "group-1",
			Total:      10 + i,
			Succeeded:  8 + i,
			Failed:     2,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + 5*time.Minute),
		}
		require.NoError(t, repo.Record(ctx, run))
	}

	runs, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Most recent first.
	assert.Equal(t, 12, runs[0].Total)
	assert.Equal(t, 11, runs[1].Total)
	assert.Equal(t, model.RunKindDispatch, runs[0].Kind)
	assert.Equal(t, "group-1", runs[0].GroupID)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))
}

func TestRunRepo_RefreshRunsHaveNoGroup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepo(db)
	ctx := context.Background()

	run := model.Run{
		ID:         uuid.NewString(),
		Kind:       model.RunKindRefresh,
		Total:      5,
		Succeeded:  4,
		Failed:     1,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Record(ctx, run))

	runs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunKindRefresh, runs[0].Kind)
	assert.Empty(t, runs[0].GroupID)
}

func TestRunRepo_ListRecentEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepo(db)

	runs, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
