package notification

import (
	"fmt"

	"github.com/nao1215/matatech/pkg/event"
	"github.com/nao1215/matatech/pkg/logger"
	"github.com/nao1215/matatech/pkg/metrics"
	"go.uber.org/zap"
)

// 送信結果。メトリクスのラベルに使用する。
const (
	resultDelivered = "delivered"
	resultDropped   = "dropped"
	resultNotFound  = "not_found"
)

// Broadcaster はRegistryに登録された接続へ通知を送る。
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewBroadcaster は新しいBroadcasterを生成する。mはnilでもよい。
func NewBroadcaster(registry *Registry, zl *zap.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.OrNop(zl),
		metrics:  m,
	}
}

// SendToOne は指定IDの接続へ通知を送る。
// 接続が存在しない場合はErrConnectionNotFoundを返す。
// 送信キューへ投入できなかった接続は閉じて登録から外す。
func (b *Broadcaster) SendToOne(id string, msg *event.Message) error {
	c, ok := b.registry.Get(id)
	if !ok {
		b.count(resultNotFound)
		return fmt.Errorf("%w: id=%s", ErrConnectionNotFound, id)
	}

	if err := c.enqueue(msg.Bytes()); err != nil {
		b.count(resultDropped)
		b.registry.drop(c, err.Error())
		return fmt.Errorf("通知の送信に失敗: id=%s: %w", id, err)
	}
	b.count(resultDelivered)
	return nil
}

// SendToAll は登録されている全接続へ通知を送り、配信できた接続数を返す。
// 送信できなかった接続は全体を失敗させずに読み飛ばし、閉じて登録から外す。
func (b *Broadcaster) SendToAll(msg *event.Message) int {
	payload := msg.Bytes()
	delivered := 0

	for _, c := range b.registry.Snapshot() {
		if err := c.enqueue(payload); err != nil {
			b.count(resultDropped)
			b.logger.Warn("通知を配信できない接続を切断します",
				zap.String("connection_id", c.ID()),
				zap.Error(err),
			)
			b.registry.drop(c, err.Error())
			continue
		}
		b.count(resultDelivered)
		delivered++
	}

	b.logger.Debug("通知をブロードキャストしました",
		zap.String("type", string(msg.Type())),
		zap.Int("delivered", delivered),
	)
	return delivered
}

func (b *Broadcaster) count(result string) {
	if b.metrics != nil {
		b.metrics.Notifications.WithLabelValues(result).Inc()
	}
}
