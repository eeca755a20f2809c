package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/metrics"
)

// Metrics はリクエスト数、処理時間、フィルタによる拒否数を記録するGinミドルウェアを返す。
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		method := methodLabel(c.Request.Method)
		m.Requests.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if reason := RejectReason(c); reason != "" {
			m.Rejections.WithLabelValues(reason).Inc()
		}
	}
}

// methodLabel は未知のメソッドをまとめてラベルの種類を抑える。
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	default:
		return "OTHER"
	}
}
