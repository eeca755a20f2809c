package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestMetrics はMetricsミドルウェアを検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	router := gin.New()
	router.Use(Metrics(m), BodyLimit(4))
	router.POST("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("ok")))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("too large")))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PURGE", "/test", nil))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "413")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("OTHER", "404")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Rejections.WithLabelValues(ReasonPayloadTooLarge)), 0)
}
