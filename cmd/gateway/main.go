// API Gatewayのエントリポイント。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
// 受付フィルタを通過したリクエストを内部サービスへ転送し、
// WebSocketで接続中のクライアントへ通知を配信する。
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/nao1215/matatech/internal/config"
	"github.com/nao1215/matatech/internal/gateway"
	"github.com/nao1215/matatech/pkg/logger"
	"github.com/nao1215/matatech/pkg/metrics"
	"github.com/nao1215/matatech/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("Gatewayサービスが異常終了しました", zap.Error(err))
		stop()
		_ = zl.Sync()
		os.Exit(1)
	}
}

// run はレート制限ストアとサーバーを初期化し、ctxがキャンセルされるまで動かす。
func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	store, cleanup, err := newStore(ctx, cfg, zl.Named("ratelimit"))
	if err != nil {
		return err
	}
	defer cleanup()

	limiter, err := ratelimit.New(store, ratelimit.Policy{
		Window: cfg.RateLimitWindow,
		Max:    cfg.RateLimitMax,
	})
	if err != nil {
		return fmt.Errorf("レート制限の初期化に失敗: %w", err)
	}

	server, err := gateway.NewServer(cfg, limiter,
		gateway.WithLogger(zl),
		gateway.WithMetrics(metrics.New()),
	)
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}

	zl.Info("Gatewayサービスを起動します",
		zap.String("addr", cfg.Addr()),
		zap.String("ops_addr", cfg.InternalAddr()),
		zap.String("rate_limit_store", cfg.RateLimitStore),
		zap.Duration("rate_limit_window", limiter.Policy().Window),
		zap.Int64("rate_limit_max", limiter.Policy().Max),
	)

	g, ctx := errgroup.WithContext(ctx)
	if sweeper, ok := store.(ratelimit.Sweeper); ok {
		g.Go(func() error {
			ratelimit.RunSweeper(ctx, sweeper, cfg.RateLimitSweepInterval, zl.Named("sweeper"))
			return nil
		})
	}
	g.Go(func() error {
		return server.Run(ctx)
	})
	return g.Wait()
}

// newStore は設定に応じたレート制限ストアを生成する。
// 戻り値の関数でストアが保持する接続を閉じる。
func newStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (ratelimit.Store, func(), error) {
	switch cfg.RateLimitStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("Redisへの接続に失敗: addr=%s: %w", cfg.RedisAddr, err)
		}
		return ratelimit.NewRedisStore(client, ""), func() { _ = client.Close() }, nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return nil, nil, fmt.Errorf("データディレクトリの作成に失敗: %w", err)
		}
		db, err := sql.Open("sqlite", cfg.SQLitePath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
		}
		store, err := ratelimit.NewSQLiteStore(ctx, db, zl)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil

	default:
		return ratelimit.NewMemoryStore(), func() {}, nil
	}
}
