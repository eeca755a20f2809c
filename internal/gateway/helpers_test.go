package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/internal/config"
	"github.com/nao1215/matatech/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	// testOrigin はテストで許可するオリジン。
	testOrigin = "http://localhost:3000"
	// testJWTSecret は運用APIのテスト用署名鍵。
	testJWTSecret = "test-internal-secret"
)

// testClock はテスト用の手動で進める時計。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// backendRecorder はバックエンドサービスが受け取ったリクエストを記録する。
type backendRecorder struct {
	calls atomic.Int64
	mu    sync.Mutex
	last  *http.Request
	body  string
}

func (b *backendRecorder) lastRequest() (*http.Request, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.body
}

// newBackend はリクエストを記録して固定のJSONを返すバックエンドを生成する。
func newBackend(t *testing.T) (*httptest.Server, *backendRecorder) {
	t.Helper()

	rec := &backendRecorder{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		rec.calls.Add(1)
		rec.mu.Lock()
		rec.last = r.Clone(r.Context())
		rec.body = string(buf)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "session=abc; HttpOnly")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"upstream":"ok"}`))
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

// testConfig はテスト用の設定を生成する。全ハンドラグループはbackendURLへ転送される。
func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	return &config.Config{
		Port:                   5000,
		AllowedOrigins:         []string{testOrigin},
		RateLimitWindow:        15 * time.Minute,
		RateLimitMax:           100,
		RateLimitStore:         "memory",
		RateLimitStoreTimeout:  time.Second,
		RateLimitSweepInterval: time.Minute,
		BodyLimit:              10 * 1024 * 1024,
		UploadsPrefix:          "/uploads",
		UploadsDir:             t.TempDir(),
		AuthServiceURL:         backendURL,
		ServicesServiceURL:     backendURL,
		OrdersServiceURL:       backendURL,
		AdminServiceURL:        backendURL,
		KYCServiceURL:          backendURL,
		UpstreamTimeout:        5 * time.Second,
		InternalPort:           5001,
		InternalJWTSecret:      testJWTSecret,
		ReadHeaderTimeout:      5 * time.Second,
		IdleTimeout:            time.Minute,
		ShutdownTimeout:        5 * time.Second,
		WSWriteWait:            5 * time.Second,
		WSPongWait:             30 * time.Second,
		WSMaxMessageSize:       4096,
		WSSendBuffer:           16,
		WSInboundRate:          10,
		WSInboundBurst:         20,
		LogLevel:               "info",
		LogFormat:              "json",
		GinMode:                "test",
	}
}

// newTestServer はテスト用のGatewayサーバーを生成する。
func newTestServer(t *testing.T, cfg *config.Config, clock *testClock, opts ...Option) *Server {
	t.Helper()

	if clock == nil {
		clock = newTestClock()
	}
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(),
		ratelimit.Policy{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		ratelimit.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("ratelimit.New()でエラーが発生: %v", err)
	}

	s, err := NewServer(cfg, limiter, opts...)
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { s.registry.CloseAll() })
	return s
}
