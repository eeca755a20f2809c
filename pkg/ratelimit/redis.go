package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript はカウンタの加算と初回の期限設定をRedis上でアトミックに行う。
// 戻り値は {加算後のカウント, 残り期限（ミリ秒）}。
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore はRedisにウィンドウを保持するStore。
// 複数のゲートウェイインスタンスでレート制限状態を共有する場合に使用する。
// ウィンドウの削除はRedisのキー期限に任せる。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore は新しいRedisStoreを生成する。
// prefixが空の場合は "ratelimit:" を使用する。
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit はkeyのウィンドウに1リクエストを記録する。
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, length time.Duration) (Window, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, length.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("Redisスクリプトの実行に失敗: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("Redisスクリプトの戻り値が不正です: %v", res)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	return Window{
		Start: now.Add(ttl - length),
		Count: count,
	}, nil
}
