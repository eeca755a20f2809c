package ratelimit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTestSQLiteStore はインメモリSQLiteを使うSQLiteStoreを生成する。
func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(context.Background(), db, nopLogger())
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	t.Run("初回はCount=1でウィンドウを開始し以降は加算されること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()
		start := time.UnixMilli(1_700_000_000_000)

		w, err := s.Hit(ctx, "k", start, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), w.Count)
		assert.True(t, w.Start.Equal(start))

		w, err = s.Hit(ctx, "k", start.Add(59*time.Second), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), w.Count)
		assert.True(t, w.Start.Equal(start))
	})

	t.Run("期限切れ後は新しいウィンドウが始まること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()
		start := time.UnixMilli(1_700_000_000_000)

		for range 5 {
			_, err := s.Hit(ctx, "k", start, time.Minute)
			require.NoError(t, err)
		}

		later := start.Add(time.Minute)
		w, err := s.Hit(ctx, "k", later, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), w.Count)
		assert.True(t, w.Start.Equal(later))
	})

	t.Run("Sweepで期限切れの行が削除されること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()
		start := time.UnixMilli(1_700_000_000_000)

		_, err := s.Hit(ctx, "old", start, time.Minute)
		require.NoError(t, err)
		_, err = s.Hit(ctx, "new", start.Add(30*time.Second), time.Minute)
		require.NoError(t, err)

		removed, err := s.Sweep(ctx, start.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})
}
