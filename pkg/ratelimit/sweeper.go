package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper は期限切れウィンドウを削除できるStore。
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// RunSweeper はctxがキャンセルされるまでinterval間隔でSweepを呼び出す。
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.Sweep(ctx, now)
			if err != nil {
				logger.Warn("期限切れウィンドウの削除に失敗", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("期限切れウィンドウを削除しました", zap.Int64("removed", removed))
			}
		}
	}
}
