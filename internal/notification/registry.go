package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nao1215/matatech/pkg/logger"
	"github.com/nao1215/matatech/pkg/metrics"
	"go.uber.org/zap"
)

// Registry は開通中の接続をIDで管理する。並行に安全に使用できる。
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	closed  bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry は空のRegistryを生成する。mはnilでもよい。
func NewRegistry(zl *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		logger:  logger.OrNop(zl),
		metrics: m,
	}
}

// Add はOpen状態の接続を登録する。
func (r *Registry) Add(c *Connection) error {
	if s := c.State(); s != StateOpen {
		return fmt.Errorf("%w: id=%s, state=%s", ErrConnectionNotOpen, c.ID(), s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.conns[c.ID()]; ok {
		return fmt.Errorf("接続IDが重複しています: id=%s", c.ID())
	}
	r.conns[c.ID()] = c
	r.updateGauge()
	return nil
}

// Remove は接続を登録から外す。登録されていた場合にtrueを返す。
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	r.updateGauge()
	return true
}

// Get はIDで接続を取得する。
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	return c, ok
}

// Snapshot は現在登録されている接続の一覧を返す。
// 返したスライスはその後の登録・削除の影響を受けない。
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len は登録されている接続数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// drop は接続を閉じて登録から外す。
func (r *Registry) drop(c *Connection, reason string) {
	closed := c.close()
	r.Remove(c.ID())
	if closed {
		r.logger.Info("WebSocket接続を切断しました",
			zap.String("connection_id", c.ID()),
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(c.ConnectedAt())),
		)
	}
}

// CloseAll は全接続にクローズフレームを送って閉じ、登録を空にする。
// 閉じた接続数を返す。シャットダウン時に使用し、以降のAddはErrRegistryClosedを返す。
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	r.updateGauge()
	r.mu.Unlock()

	closed := 0
	for _, c := range conns {
		if c.shutdown(websocket.CloseGoingAway, "server shutdown") {
			closed++
		}
	}
	return closed
}

// updateGauge は接続数のゲージを更新する。r.muを保持して呼び出す。
func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.Connections.Set(float64(len(r.conns)))
	}
}
