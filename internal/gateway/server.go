package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nao1215/matatech/internal/config"
	"github.com/nao1215/matatech/internal/notification"
	"github.com/nao1215/matatech/pkg/httpclient"
	"github.com/nao1215/matatech/pkg/logger"
	"github.com/nao1215/matatech/pkg/metrics"
	"github.com/nao1215/matatech/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// descriptor はルートパスで返すAPIの説明。
type descriptor struct {
	// Message は歓迎メッセージ。
	Message string `json:"message"`
	// Version はAPIのバージョン。
	Version string `json:"version"`
	// Services は提供サービスの一覧。
	Services []string `json:"services"`
}

// apiDescriptor はGET / の応答。リクエストによらず一定。
var apiDescriptor = descriptor{
	Message: "MataTech APIへようこそ 🇾🇪",
	Version: "1.0.0",
	Services: []string{
		"ウォレットチャージ",
		"プリペイドカード",
		"ゲームチャージ",
		"公共料金の支払い",
		"出金",
	},
}

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// cfg はゲートウェイの設定。
	cfg *config.Config
	// engine は公開リスナーのGinエンジン。
	engine *gin.Engine
	// opsEngine は運用APIのGinエンジン。
	opsEngine *gin.Engine
	// routes はハンドラグループのルートテーブル。
	routes *RouteTable
	// registry はWebSocket接続のレジストリ。
	registry *notification.Registry
	// broadcaster は通知の配信を行う。
	broadcaster *notification.Broadcaster
	// endpoint はWebSocketのアップグレードを受け付ける。
	endpoint *notification.Endpoint
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// logger はロガー。
	logger *zap.Logger
}

// options はNewServerのオプション。
type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	groups  []Route
}

// Option はNewServerのオプションを設定する。
type Option func(*options)

// WithLogger はロガーを設定する。
func WithLogger(zl *zap.Logger) Option {
	return func(o *options) { o.logger = zl }
}

// WithMetrics はメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHandlerGroup は設定の上流サービスに加えてハンドラグループを登録する。
func WithHandlerGroup(prefix string, h gin.HandlerFunc) Option {
	return func(o *options) { o.groups = append(o.groups, Route{Prefix: prefix, Handler: h}) }
}

// NewServer は新しいGatewayサーバーを生成する。
// ルートテーブルはここで確定し、登録に失敗した場合はエラーを返す。
func NewServer(cfg *config.Config, limiter middleware.RateLimiter, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNop(o.logger)
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	s := &Server{
		cfg:     cfg,
		routes:  NewRouteTable(),
		metrics: o.metrics,
		logger:  o.logger,
	}

	if err := s.mountGroups(o.groups); err != nil {
		return nil, err
	}

	origins := middleware.NewOriginPolicy(cfg.AllowedOrigins)
	s.registry = notification.NewRegistry(s.logger.Named("registry"), s.metrics)
	s.broadcaster = notification.NewBroadcaster(s.registry, s.logger.Named("broadcaster"), s.metrics)
	s.endpoint = notification.NewEndpoint(s.registry, notification.EndpointConfig{
		WriteWait:      cfg.WSWriteWait,
		PongWait:       cfg.WSPongWait,
		MaxMessageSize: cfg.WSMaxMessageSize,
		SendBuffer:     cfg.WSSendBuffer,
		InboundRate:    cfg.WSInboundRate,
		InboundBurst:   cfg.WSInboundBurst,
		CheckOrigin:    origins.CheckOrigin,
	}, s.logger.Named("websocket"))

	router := gin.New()
	// リダイレクトはミドルウェアより前に応答されるため無効にし、全リクエストをフィルタに通す
	router.RedirectTrailingSlash = false
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}
	router.Use(
		middleware.AccessLog(s.logger.Named("access")),
		middleware.Metrics(s.metrics),
		middleware.Recovery(s.logger),
		middleware.SecurityHeaders(),
		middleware.Origin(origins),
		middleware.RateLimit(limiter, cfg.RateLimitStoreTimeout),
		middleware.BodyLimit(cfg.BodyLimit),
	)
	s.engine = router
	s.setupRoutes()
	s.opsEngine = s.newOpsEngine()

	return s, nil
}

// mountGroups は上流サービス・静的ファイル・追加のハンドラグループを登録し、
// ルートテーブルを確定する。
func (s *Server) mountGroups(extra []Route) error {
	for prefix, baseURL := range s.cfg.Upstreams() {
		client, err := httpclient.New(baseURL, s.cfg.UpstreamTimeout)
		if err != nil {
			return fmt.Errorf("ハンドラグループ %s の初期化に失敗: %w", prefix, err)
		}
		if err := s.routes.Mount(prefix, upstreamGroup(client)); err != nil {
			return err
		}
	}
	if err := s.routes.Mount(s.cfg.UploadsPrefix, staticGroup(s.cfg.UploadsDir)); err != nil {
		return err
	}
	for _, r := range extra {
		if err := s.routes.Mount(r.Prefix, r.Handler); err != nil {
			return err
		}
	}
	s.routes.Freeze()
	return nil
}

// setupRoutes は組み込みのルートを設定する。
// それ以外のリクエストはすべてルートテーブルで振り分ける。
func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleDescriptor())
	s.engine.HEAD("/", s.handleDescriptor())
	s.engine.GET("/health", s.handleHealth())
	s.engine.HEAD("/health", s.handleHealth())
	s.engine.NoRoute(s.routes.Dispatch)
}

// handleDescriptor はAPIの説明を返すハンドラ。
func (s *Server) handleDescriptor() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, apiDescriptor)
	}
}

// handleHealth はヘルスチェックのハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	}
}

// ServeHTTP はWebSocketのアップグレード要求を通知エンドポイントへ、
// それ以外をパイプラインへ渡す。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.endpoint.ServeHTTP(w, r)
		return
	}
	s.engine.ServeHTTP(w, r)
}

// OpsHandler は運用APIのハンドラを返す。
func (s *Server) OpsHandler() http.Handler {
	return s.opsEngine
}

// Broadcaster は通知の配信を行うBroadcasterを返す。
func (s *Server) Broadcaster() *notification.Broadcaster {
	return s.broadcaster
}

// Run は設定のポートでリッスンし、ctxがキャンセルされるまでサーバーを動かす。
func (s *Server) Run(ctx context.Context) error {
	public, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("公開ポートのリッスンに失敗: %w", err)
	}

	var ops net.Listener
	if s.cfg.InternalPort != 0 {
		ops, err = net.Listen("tcp", s.cfg.InternalAddr())
		if err != nil {
			_ = public.Close()
			return fmt.Errorf("運用APIポートのリッスンに失敗: %w", err)
		}
	}
	return s.Serve(ctx, public, ops)
}

// Serve は指定されたリスナーでサーバーを動かす。opsがnilの場合は運用APIを起動しない。
// ctxがキャンセルされるとグレースフルシャットダウンを行い、全WebSocket接続を閉じる。
func (s *Server) Serve(ctx context.Context, public, ops net.Listener) error {
	servers := []*http.Server{s.newHTTPServer(s)}
	listeners := []net.Listener{public}
	if ops != nil {
		servers = append(servers, s.newHTTPServer(s.opsEngine))
		listeners = append(listeners, ops)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			s.logger.Info("リッスンを開始します", zap.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("サーバーの実行に失敗: addr=%s: %w", ln.Addr(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown(servers)
	})
	return g.Wait()
}

// shutdown は全リスナーを停止し、WebSocket接続を閉じる。
func (s *Server) shutdown(servers []*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("シャットダウンを開始します")
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("サーバーの停止に失敗: %w", err))
		}
	}
	closed := s.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		s.endpoint.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("WebSocket接続の終了待ちがタイムアウトしました: %w", ctx.Err()))
	}
	s.logger.Info("シャットダウンが完了しました", zap.Int("closed_connections", closed))
	return errors.Join(errs...)
}

// newHTTPServer はタイムアウトを設定したhttp.Serverを生成する。
func (s *Server) newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
}
