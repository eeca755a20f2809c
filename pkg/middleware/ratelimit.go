package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/ratelimit"
)

// rateLimitedMessage はレート制限超過時の応答メッセージ。
const rateLimitedMessage = "リクエスト数が上限を超えました。しばらくしてから再度お試しください"

// RateLimiter はクライアント単位でリクエストの許可を判定する。
// *ratelimit.Limiter が実装する。
type RateLimiter interface {
	// Allow はkeyのリクエストを1件記録し、許可するかどうかを返す。
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
	// Now は判定に使う現在時刻を返す。
	Now() time.Time
}

// RateLimit はクライアントIPごとに固定ウィンドウでリクエスト数を制限する
// Ginミドルウェアを返す。
//
// ストアへの問い合わせはtimeoutで打ち切る（0以下なら無制限）。
// ストアの障害は c.Error で障害境界に委ね、制限を解除して通すことはしない。
func RateLimit(limiter RateLimiter, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		decision, err := limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			_ = c.Error(fmt.Errorf("レート制限の判定に失敗: %w", err))
			c.Abort()
			return
		}

		retryAfter := seconds(decision.RetryAfter(limiter.Now()))
		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(retryAfter, 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			reject(c, http.StatusTooManyRequests, ReasonRateLimited, rateLimitedMessage)
			return
		}

		c.Next()
	}
}

// seconds はdを秒単位に切り上げる。
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
