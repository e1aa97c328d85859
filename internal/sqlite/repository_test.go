package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/filexfer/internal/files"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryRecordAndRecent(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	transfers := []*files.Transfer{
		{
			ID:         "1",
			Op:         files.OpUpload,
			FileName:   "a.txt",
			Size:       12,
			SHA256:     "abc",
			OK:         true,
			RemoteAddr: "127.0.0.1:4000",
			StartedAt:  start,
			Duration:   1500 * time.Millisecond,
		},
		{
			ID:        "2",
			Op:        files.OpDelete,
			FileName:  "b.txt",
			OK:        false,
			Error:     "file not found",
			StartedAt: start.Add(time.Minute),
		},
	}
	for _, tr := range transfers {
		require.NoError(t, repo.Record(ctx, tr))
	}

	got, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, files.OpDelete, got[0].Op)
	assert.False(t, got[0].OK)
	assert.Equal(t, "file not found", got[0].Error)
	assert.Empty(t, got[0].SHA256)

	assert.Equal(t, "1", got[1].ID)
	assert.Equal(t, "a.txt", got[1].FileName)
	assert.Equal(t, int64(12), got[1].Size)
	assert.True(t, got[1].OK)
	assert.Equal(t, "abc", got[1].SHA256)
	assert.Equal(t, "127.0.0.1:4000", got[1].RemoteAddr)
	assert.Equal(t, 1500*time.Millisecond, got[1].Duration)
	assert.True(t, start.Equal(got[1].StartedAt))
}

func TestRepositoryRecentLimit(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Record(ctx, &files.Transfer{
			ID:        id,
			Op:        files.OpDownload,
			FileName:  id,
			OK:        true,
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRepositoryDuplicateID(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	tr := &files.Transfer{ID: "dup", Op: files.OpUpload, FileName: "x", StartedAt: time.Now()}
	require.NoError(t, repo.Record(ctx, tr))
	assert.Error(t, repo.Record(ctx, tr))
}
