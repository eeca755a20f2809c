package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis はテスト用のインメモリRedisとクライアントを生成する。
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	t.Run("加算と期限設定が行われること", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		s := NewRedisStore(client, "")
		ctx := context.Background()
		now := time.Now()

		for i := int64(1); i <= 3; i++ {
			w, err := s.Hit(ctx, "198.51.100.7", now, 15*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, w.Count)
		}

		assert.True(t, mr.Exists("ratelimit:198.51.100.7"))
		assert.Equal(t, 15*time.Minute, mr.TTL("ratelimit:198.51.100.7"))
	})

	t.Run("期限切れ後は新しいウィンドウが始まること", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		s := NewRedisStore(client, "rl:")
		ctx := context.Background()
		now := time.Now()

		_, err := s.Hit(ctx, "k", now, time.Minute)
		require.NoError(t, err)
		_, err = s.Hit(ctx, "k", now, time.Minute)
		require.NoError(t, err)

		mr.FastForward(time.Minute)

		w, err := s.Hit(ctx, "k", now.Add(time.Minute), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), w.Count)
		assert.True(t, w.Start.Equal(now.Add(time.Minute)))
	})

	t.Run("Limiterと組み合わせて上限を判定できること", func(t *testing.T) {
		t.Parallel()

		_, client := newTestRedis(t)
		l, err := New(NewRedisStore(client, ""), Policy{Window: time.Minute, Max: 2})
		require.NoError(t, err)
		ctx := context.Background()

		for range 2 {
			d, err := l.Allow(ctx, "c")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		}
		d, err := l.Allow(ctx, "c")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})

	t.Run("Redisに接続できない場合エラーを返すこと", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		mr.Close()

		_, err := NewRedisStore(client, "").Hit(context.Background(), "k", time.Now(), time.Minute)
		assert.Error(t, err)
	})
}
