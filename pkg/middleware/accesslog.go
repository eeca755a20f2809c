package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/logger"
	"go.uber.org/zap"
)

// AccessLog はリクエストごとに1行のアクセスログを出力するGinミドルウェアを返す。
// 5xxはError、4xxはWarn、それ以外はInfoレベルで出力する。
func AccessLog(zl *zap.Logger) gin.HandlerFunc {
	zl = logger.OrNop(zl)

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("size", c.Writer.Size()),
		}
		if reason := RejectReason(c); reason != "" {
			fields = append(fields, zap.String("reject_reason", reason))
		}

		switch {
		case status >= 500:
			zl.Error("request", fields...)
		case status >= 400:
			zl.Warn("request", fields...)
		default:
			zl.Info("request", fields...)
		}
	}
}
