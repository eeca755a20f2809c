package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nao1215/matatech/pkg/event"
	"github.com/nao1215/matatech/pkg/logger"
	"github.com/nao1215/matatech/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EndpointConfig はWebSocketエンドポイントの設定。
type EndpointConfig struct {
	// WriteWait は1メッセージの書き込みに許す時間。
	WriteWait time.Duration
	// PongWait はpongを待つ時間。pingはこの9/10の間隔で送る。
	PongWait time.Duration
	// MaxMessageSize は受信メッセージの最大バイト数。
	MaxMessageSize int64
	// SendBuffer は接続ごとの送信キューの長さ。
	SendBuffer int
	// InboundRate は1秒あたりに観測する受信メッセージ数。
	InboundRate float64
	// InboundBurst は受信メッセージのバースト許容数。
	InboundBurst int
	// CheckOrigin はアップグレード要求のオリジンを判定する。
	CheckOrigin func(r *http.Request) bool
}

// DefaultEndpointConfig は既定の設定を返す。
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		InboundRate:    10,
		InboundBurst:   20,
	}
}

// Endpoint はWebSocketのアップグレード要求を受け付けるhttp.Handler。
// 開通した接続をRegistryに登録し、ウェルカムメッセージを送る。
type Endpoint struct {
	registry *Registry
	upgrader websocket.Upgrader
	cfg      EndpointConfig
	logger   *zap.Logger

	// mu はclosedとwg.Addを保護する
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// badUpgradeMessage はアップグレード要求が不正な場合の応答メッセージ。
const badUpgradeMessage = "WebSocketのアップグレード要求が不正です"

// upgradeError はアップグレードの失敗をJSONのエラーレスポンスとして返す。
func upgradeError(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	message := badUpgradeMessage
	if status == http.StatusForbidden {
		message = middleware.OriginNotAllowedMessage
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Sec-Websocket-Version", "13")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// NewEndpoint は新しいEndpointを生成する。
func NewEndpoint(registry *Registry, cfg EndpointConfig, zl *zap.Logger) *Endpoint {
	def := DefaultEndpointConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = def.InboundRate
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = def.InboundBurst
	}

	return &Endpoint{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
			Error:           upgradeError,
		},
		cfg:    cfg,
		logger: logger.OrNop(zl),
	}
}

// ServeHTTP は接続をアップグレードし、送受信のゴルーチンを開始する。
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		e.logger.Warn("WebSocketのアップグレードに失敗しました",
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c, err := e.accept(ws)
	if err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			e.logger.Info("シャットダウン中のため接続を閉じました", zap.String("remote_addr", r.RemoteAddr))
			return
		}
		e.logger.Error("WebSocket接続の登録に失敗しました", zap.Error(err))
		return
	}
	if !e.start(c) {
		e.registry.drop(c, "shutdown")
	}
}

// start は接続の送受信ゴルーチンを開始する。Wait後は開始せずfalseを返す。
func (e *Endpoint) start(c *Connection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.writePump(c)
	}()
	go func() {
		defer e.wg.Done()
		e.readPump(c)
	}()
	return true
}

// accept は接続を開通させて登録する。
// ウェルカムメッセージは登録より前にキューへ入れるため、
// どの通知よりも先にクライアントへ届く。
func (e *Endpoint) accept(ws Conn) (*Connection, error) {
	c := newConnection(ws, e.cfg.SendBuffer)

	if err := c.enqueue(event.Welcome().Bytes()); err != nil {
		c.close()
		return nil, err
	}
	if err := c.open(); err != nil {
		c.close()
		return nil, err
	}
	if err := e.registry.Add(c); err != nil {
		c.close()
		return nil, err
	}

	e.logger.Info("WebSocket接続を受け付けました",
		zap.String("connection_id", c.ID()),
		zap.String("remote_addr", c.RemoteAddr()),
	)
	return c, nil
}

// Wait は新しい送受信ゴルーチンの開始を止め、既存のゴルーチンの終了を待つ。
// Registry.CloseAllの後に呼び出す。
func (e *Endpoint) Wait() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}

// readPump はクライアントからのメッセージを読み続ける。
// 受信エラーで接続を閉じて登録から外す。
func (e *Endpoint) readPump(c *Connection) {
	defer e.registry.drop(c, "read")

	ws := c.conn
	ws.SetReadLimit(e.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(e.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(e.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(e.cfg.InboundRate), e.cfg.InboundBurst)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("WebSocket接続が予期せず切断されました",
					zap.String("connection_id", c.ID()),
					zap.Error(err),
				)
			}
			return
		}
		// 受信したメッセージも生存確認とみなす
		_ = ws.SetReadDeadline(time.Now().Add(e.cfg.PongWait))

		if !limiter.Allow() {
			e.logger.Warn("受信メッセージが多すぎるため破棄しました",
				zap.String("connection_id", c.ID()),
			)
			continue
		}
		e.logger.Debug("メッセージを受信しました",
			zap.String("connection_id", c.ID()),
			zap.Int("size", len(msg)),
		)
	}
}

// writePump は送信キューのメッセージを書き込み、定期的にpingを送る。
// 書き込みエラーで接続を閉じて登録から外す。
func (e *Endpoint) writePump(c *Connection) {
	ticker := time.NewTicker(e.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		e.registry.drop(c, "write")
	}()

	ws := c.conn
	for {
		select {
		case msg := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(e.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				e.logger.Warn("WebSocketへの書き込みに失敗しました",
					zap.String("connection_id", c.ID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(e.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done():
			return
		}
	}
}
