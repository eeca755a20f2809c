package ratelimit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/matatech/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// hitQuery はウィンドウの開始または加算を1文で行う。
// SQLiteの UPSERT は1文単位でアトミックに実行される。
const hitQuery = `
INSERT INTO rate_windows (key, window_start, count, expires_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(key) DO UPDATE SET
    count = CASE WHEN ? - rate_windows.window_start >= ? THEN 1 ELSE rate_windows.count + 1 END,
    window_start = CASE WHEN ? - rate_windows.window_start >= ? THEN ? ELSE rate_windows.window_start END,
    expires_at = CASE WHEN ? - rate_windows.window_start >= ? THEN ? ELSE rate_windows.expires_at END
RETURNING window_start, count
`

// SQLiteStore はSQLiteにウィンドウを保持するStore。
// 同一ホスト上の複数プロセスで同じデータベースファイルを共有できる。
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore はマイグレーションを適用して新しいSQLiteStoreを生成する。
func NewSQLiteStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		return nil, fmt.Errorf("レート制限テーブルの準備に失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Hit はkeyのウィンドウに1リクエストを記録する。
func (s *SQLiteStore) Hit(ctx context.Context, key string, now time.Time, length time.Duration) (Window, error) {
	nowMs := now.UnixMilli()
	lenMs := length.Milliseconds()
	expires := nowMs + lenMs

	var start, count int64
	err := s.db.QueryRowContext(ctx, hitQuery,
		key, nowMs, expires,
		nowMs, lenMs,
		nowMs, lenMs, nowMs,
		nowMs, lenMs, expires,
	).Scan(&start, &count)
	if err != nil {
		return Window{}, fmt.Errorf("ウィンドウの更新に失敗: %w", err)
	}

	return Window{Start: time.UnixMilli(start), Count: count}, nil
}

// Sweep は期限切れのウィンドウを削除し、削除した件数を返す。
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rate_windows WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("期限切れウィンドウの削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}
