package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	t.Run("初回はCount=1でウィンドウを開始すること", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryStore()
		now := time.Now()

		w, err := s.Hit(context.Background(), "k", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), w.Count)
		assert.True(t, w.Start.Equal(now))
	})

	t.Run("期限内は加算され開始時刻は変わらないこと", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryStore()
		start := time.Now()
		ctx := context.Background()

		_, err := s.Hit(ctx, "k", start, time.Minute)
		require.NoError(t, err)
		w, err := s.Hit(ctx, "k", start.Add(30*time.Second), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), w.Count)
		assert.True(t, w.Start.Equal(start))
	})

	t.Run("Sweepで期限切れのウィンドウだけが削除されること", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryStore()
		start := time.Now()
		ctx := context.Background()

		_, err := s.Hit(ctx, "old", start, time.Minute)
		require.NoError(t, err)
		_, err = s.Hit(ctx, "new", start.Add(45*time.Second), time.Minute)
		require.NoError(t, err)
		require.Equal(t, 2, s.Len())

		removed, err := s.Sweep(ctx, start.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, 1, s.Len())
	})
}

func TestRunSweeper(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.Hit(context.Background(), "k", time.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, s, 5*time.Millisecond, nopLogger())
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
