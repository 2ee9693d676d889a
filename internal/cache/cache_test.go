package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"confessions/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetClient(rdb)
	t.Cleanup(func() {
		SetClient(nil)
		_ = rdb.Close()
	})
	return mr, rdb
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "confession:ref-42:comment_count", CommentCountKey("ref-42"))
	assert.Equal(t, "confessions:snapshot:campus", SnapshotKey("campus"))
	assert.Equal(t, "confessions:snapshot:default", SnapshotKey(""))
}

func TestCacheAside(t *testing.T) {
	mr, _ := setupRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *int) func() error {
		return func() error {
			calls++
			*dest = 7
			return nil
		}
	}

	var first int
	require.NoError(t, CacheAside(ctx, CommentCountKey("ref-1"), &first, time.Minute, fetch(&first)))
	assert.Equal(t, 7, first)
	assert.True(t, mr.Exists(CommentCountKey("ref-1")))

	var second int
	require.NoError(t, CacheAside(ctx, CommentCountKey("ref-1"), &second, time.Minute, fetch(&second)))
	assert.Equal(t, 7, second)
	assert.Equal(t, 1, calls)

	InvalidateCommentCount(ctx, "ref-1")
	assert.False(t, mr.Exists(CommentCountKey("ref-1")))
}

func TestCacheAside_FetchError(t *testing.T) {
	setupRedis(t)
	var n int
	err := CacheAside(context.Background(), CommentCountKey("ref-2"), &n, time.Minute, func() error {
		return errors.New("db down")
	})
	assert.Error(t, err)
}

func TestCacheAside_NoClient(t *testing.T) {
	SetClient(nil)
	var n int
	err := CacheAside(context.Background(), CommentCountKey("ref-3"), &n, time.Minute, func() error {
		n = 4
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCacheAside_CorruptEntryRefetches(t *testing.T) {
	mr, _ := setupRedis(t)
	require.NoError(t, mr.Set(CommentCountKey("ref-5"), "{not json"))

	var n int
	require.NoError(t, CacheAside(context.Background(), CommentCountKey("ref-5"), &n, time.Minute, func() error {
		n = 9
		return nil
	}))
	assert.Equal(t, 9, n)
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	store := NewSnapshotStore(rdb, "campus")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c, err := models.NewPendingConfession(1, "a confession long enough", models.CategoryLove, "Medicine", "", now)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, &Snapshot{
		Pending:  []*models.Confession{c},
		LikedIDs: map[string][]int64{"u-1": {3, 4}},
	}))
	assert.True(t, mr.Exists("confessions:snapshot:campus"))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.False(t, snap.SavedAt.IsZero())
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, c.Content, snap.Pending[0].Content)
	assert.Equal(t, []int64{3, 4}, snap.LikedIDs["u-1"])

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrSnapshotMissing)
}

func TestSnapshotStore_Rejects(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	store := NewSnapshotStore(rdb, "default")

	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", "{broken"},
		{"stale version", `{"version":0,"pending":[]}`},
		{"future version", `{"version":99}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, mr.Set(SnapshotKey("default"), tt.raw))
			_, err := store.Load(ctx)
			assert.ErrorIs(t, err, ErrSnapshotInvalid)
		})
	}
}

func TestSnapshotStore_NilClient(t *testing.T) {
	store := NewSnapshotStore(nil, "x")
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotMissing)
	assert.NoError(t, store.Save(context.Background(), &Snapshot{}))
}
