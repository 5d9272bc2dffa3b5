package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s4b3rt0oth/spotify2/internal/config"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	cfg := &config.Config{DataDir: t.TempDir()}
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepo(db)
}

func TestHistory_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddHistory(ctx, &HistoryEntry{
		URI: "spotify:track:aaa", Title: "First", Artist: "One", PlayedAt: 100,
	}))
	require.NoError(t, repo.AddHistory(ctx, &HistoryEntry{
		URI: "spotify:track:bbb", Title: "Second", Artist: "Two", PlayedAt: 200,
	}))

	got, err := repo.RecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "spotify:track:bbb", got[0].URI, "newest first")
	assert.Equal(t, "spotify:track:aaa", got[1].URI)
}

func TestHistory_DefaultsPlayedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	before := time.Now().Unix()
	entry := &HistoryEntry{URI: "spotify:track:ccc", Title: "Now", Artist: "Three"}
	require.NoError(t, repo.AddHistory(ctx, entry))

	assert.GreaterOrEqual(t, entry.PlayedAt, before)
}

func TestHistory_LimitClamped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AddHistory(ctx, &HistoryEntry{
			URI: "spotify:track:x", Title: "t", Artist: "a", PlayedAt: int64(i + 1),
		}))
	}

	got, err := repo.RecentHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.RecentHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3, "non-positive limit falls back to the default")
}

func TestCacheAccounting(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CacheTouch(ctx, "aaa", 100, true))
	require.NoError(t, repo.CacheTouch(ctx, "bbb", 250, true))

	total, err := repo.CacheTotalBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)

	require.NoError(t, repo.CacheRemove(ctx, "aaa"))
	total, err = repo.CacheTotalBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)
}

func TestCacheOldest_TracksAccessOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// accessed_at has second resolution; write the rows directly so the
	// ordering is deterministic.
	require.NoError(t, repo.CacheTouch(ctx, "old", 10, true))
	require.NoError(t, repo.CacheTouch(ctx, "new", 10, true))
	_, err := repo.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=1 WHERE hash='old'`)
	require.NoError(t, err)

	oldest, err := repo.CacheOldest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", oldest)

	_, err = repo.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=0 WHERE hash='new'`)
	require.NoError(t, err)
	oldest, err = repo.CacheOldest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", oldest)
}

func TestCacheTouch_PreservesCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CacheTouch(ctx, "aaa", 100, true))
	_, err := repo.db.ExecContext(ctx, `UPDATE file_cache SET created_at=42 WHERE hash='aaa'`)
	require.NoError(t, err)

	require.NoError(t, repo.CacheTouch(ctx, "aaa", 120, true))

	var createdAt int64
	row := repo.db.QueryRowContext(ctx, `SELECT created_at FROM file_cache WHERE hash='aaa'`)
	require.NoError(t, row.Scan(&createdAt))
	assert.Equal(t, int64(42), createdAt)
}
