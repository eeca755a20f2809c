package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config はゲートウェイの全設定。
type Config struct {
	// Port は公開リスナーのポート。
	Port int `envconfig:"PORT" default:"5000" validate:"min=1,max=65535"`
	// AllowedOrigins はクロスオリジンリクエストを許可するオリジン。
	AllowedOrigins []string `envconfig:"FRONTEND_URL" default:"http://localhost:3000" validate:"required,dive,url"`
	// TrustedProxies はクライアントIPの判定で信頼するプロキシ。
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	// RateLimitWindow は固定ウィンドウの長さ。
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m" validate:"gt=0"`
	// RateLimitMax はウィンドウ内で許可する最大リクエスト数。
	RateLimitMax int64 `envconfig:"RATE_LIMIT_MAX" default:"100" validate:"gt=0"`
	// RateLimitStore はウィンドウの保存先（memory / redis / sqlite）。
	RateLimitStore string `envconfig:"RATE_LIMIT_STORE" default:"memory" validate:"oneof=memory redis sqlite"`
	// RateLimitStoreTimeout はストアへの1回のアクセスにかける時間の上限。
	RateLimitStoreTimeout time.Duration `envconfig:"RATE_LIMIT_STORE_TIMEOUT" default:"200ms" validate:"gt=0"`
	// RateLimitSweepInterval は期限切れウィンドウを削除する間隔。
	RateLimitSweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"1m" validate:"gt=0"`

	// RedisAddr はRedisのアドレス。
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	// RedisPassword はRedisのパスワード。
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	// RedisDB はRedisのデータベース番号。
	RedisDB int `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	// SQLitePath はSQLiteストアのデータベースファイル。
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/ratelimit.db"`

	// BodyLimit はリクエストボディの最大バイト数。
	BodyLimit int64 `envconfig:"BODY_LIMIT" default:"10485760" validate:"gt=0"`

	// UploadsPrefix は静的ファイルを公開するパスプレフィックス。
	UploadsPrefix string `envconfig:"UPLOADS_PREFIX" default:"/uploads" validate:"startswith=/"`
	// UploadsDir は静的ファイルのディレクトリ。
	UploadsDir string `envconfig:"UPLOADS_DIR" default:"uploads" validate:"required"`

	// AuthServiceURL は認証サービスのURL。
	AuthServiceURL string `envconfig:"AUTH_SERVICE_URL" default:"http://localhost:5101" validate:"url"`
	// ServicesServiceURL はサービスカタログのURL。
	ServicesServiceURL string `envconfig:"SERVICES_SERVICE_URL" default:"http://localhost:5102" validate:"url"`
	// OrdersServiceURL は注文サービスのURL。
	OrdersServiceURL string `envconfig:"ORDERS_SERVICE_URL" default:"http://localhost:5103" validate:"url"`
	// AdminServiceURL は管理サービスのURL。
	AdminServiceURL string `envconfig:"ADMIN_SERVICE_URL" default:"http://localhost:5104" validate:"url"`
	// KYCServiceURL は本人確認サービスのURL。
	KYCServiceURL string `envconfig:"KYC_SERVICE_URL" default:"http://localhost:5105" validate:"url"`
	// UpstreamTimeout は内部サービスへの転送のタイムアウト。
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s" validate:"gt=0"`

	// InternalPort は運用APIのポート。0の場合は起動しない。
	InternalPort int `envconfig:"INTERNAL_PORT" default:"5001" validate:"min=0,max=65535"`
	// InternalJWTSecret は運用APIのサービストークンの署名鍵。
	InternalJWTSecret string `envconfig:"INTERNAL_JWT_SECRET" default:"dev-internal-secret" validate:"required"`

	// ReadHeaderTimeout はリクエストヘッダー読み取りのタイムアウト。
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"10s" validate:"gt=0"`
	// IdleTimeout はKeep-Alive接続のアイドルタイムアウト。
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s" validate:"gt=0"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`

	// WSWriteWait はWebSocket書き込みのタイムアウト。
	WSWriteWait time.Duration `envconfig:"WS_WRITE_WAIT" default:"10s" validate:"gt=0"`
	// WSPongWait はPongを待つ時間。Pingはこの9/10の間隔で送る。
	WSPongWait time.Duration `envconfig:"WS_PONG_WAIT" default:"60s" validate:"gt=0"`
	// WSMaxMessageSize はクライアントから受け付けるメッセージの最大バイト数。
	WSMaxMessageSize int64 `envconfig:"WS_MAX_MESSAGE_SIZE" default:"4096" validate:"gt=0"`
	// WSSendBuffer は接続ごとの送信キューの長さ。
	WSSendBuffer int `envconfig:"WS_SEND_BUFFER" default:"64" validate:"gt=0"`
	// WSInboundRate はクライアントから受け付けるメッセージの毎秒の上限。
	WSInboundRate float64 `envconfig:"WS_INBOUND_RATE" default:"10" validate:"gt=0"`
	// WSInboundBurst は受信メッセージのバースト許容数。
	WSInboundBurst int `envconfig:"WS_INBOUND_BURST" default:"20" validate:"gt=0"`

	// LogLevel はログレベル。
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// LogFormat はログ形式（json / console）。
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
	// GinMode はGinの動作モード。
	GinMode string `envconfig:"GIN_MODE" default:"release" validate:"oneof=debug release test"`
}

// Load は .env ファイルと環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return FromEnv()
}

// FromEnv は環境変数のみから設定を読み込み、検証する。
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize は比較に使う値の表記を揃える。
func (c *Config) normalize() {
	for i, o := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimRight(strings.TrimSpace(o), "/")
	}
	for i, p := range c.TrustedProxies {
		c.TrustedProxies[i] = strings.TrimSpace(p)
	}
	if len(c.UploadsPrefix) > 1 {
		c.UploadsPrefix = strings.TrimRight(c.UploadsPrefix, "/")
	}
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("設定値が不正です: %w", err)
	}
	for _, o := range c.AllowedOrigins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("設定値が不正です: FRONTEND_URL はオリジン（scheme://host[:port]）で指定してください: %q", o)
		}
	}
	if c.InternalPort != 0 && c.InternalPort == c.Port {
		return fmt.Errorf("設定値が不正です: INTERNAL_PORT と PORT が同じです: %d", c.Port)
	}
	return nil
}

// Addr は公開リスナーのアドレスを返す。
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// InternalAddr は運用APIのアドレスを返す。
func (c *Config) InternalAddr() string { return fmt.Sprintf(":%d", c.InternalPort) }

// Upstreams はパスプレフィックスと内部サービスURLの対応を返す。
func (c *Config) Upstreams() map[string]string {
	return map[string]string{
		"/api/auth":     c.AuthServiceURL,
		"/api/services": c.ServicesServiceURL,
		"/api/orders":   c.OrdersServiceURL,
		"/api/admin":    c.AdminServiceURL,
		"/api/kyc":      c.KYCServiceURL,
	}
}
