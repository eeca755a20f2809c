package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy はポリシーの値が不正な場合に返される。
var ErrInvalidPolicy = errors.New("レート制限ポリシーが不正です")

// Window はクライアント識別子ごとのレート制限ウィンドウ。
type Window struct {
	// Start はウィンドウの開始時刻。
	Start time.Time
	// Count はウィンドウ内のリクエスト数。
	Count int64
}

// Expired はnow時点でウィンドウが期限切れかどうかを返す。
func (w Window) Expired(now time.Time, length time.Duration) bool {
	return now.Sub(w.Start) >= length
}

// Store はレート制限ウィンドウの保存先。
type Store interface {
	// Hit はkeyのウィンドウに1リクエストを記録し、記録後のウィンドウを返す。
	// ウィンドウが存在しないか期限切れの場合は now を開始時刻として Count=1 で開始する。
	// 読み取り・判定・加算は1つのアトミックな操作として行わなければならない。
	Hit(ctx context.Context, key string, now time.Time, length time.Duration) (Window, error)
}

// Policy はレート制限の設定値。
type Policy struct {
	// Window はウィンドウの長さ。
	Window time.Duration
	// Max はウィンドウ内で許可する最大リクエスト数。
	Max int64
}

// Validate はポリシーの値を検証する。
func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("%w: ウィンドウ長は正の値が必要です: %s", ErrInvalidPolicy, p.Window)
	}
	if p.Max <= 0 {
		return fmt.Errorf("%w: 最大リクエスト数は正の値が必要です: %d", ErrInvalidPolicy, p.Max)
	}
	return nil
}

// Decision はレート制限の判定結果。
type Decision struct {
	// Allowed はリクエストが許可されたかどうか。
	Allowed bool
	// Limit はウィンドウ内の最大リクエスト数。
	Limit int64
	// Remaining はウィンドウ内で残っているリクエスト数。
	Remaining int64
	// Count はウィンドウ内のリクエスト数（今回を含む）。
	Count int64
	// ResetAt はウィンドウがリセットされる時刻。
	ResetAt time.Time
}

// RetryAfter はnow時点からウィンドウのリセットまでの時間を返す。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter は固定ウィンドウ方式のレートリミッター。
type Limiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// Option はLimiterの生成オプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テストで使用する。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New は新しいLimiterを生成する。
func New(store Store, policy Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("レート制限ストアが指定されていません")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy はLimiterのポリシーを返す。
func (l *Limiter) Policy() Policy { return l.policy }

// Now はLimiterが使用する現在時刻を返す。
func (l *Limiter) Now() time.Time { return l.now() }

// Allow はkeyで識別されるクライアントのリクエストを許可するかどうかを判定する。
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	w, err := l.store.Hit(ctx, key, l.now(), l.policy.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("レート制限ウィンドウの更新に失敗: %w", err)
	}

	remaining := l.policy.Max - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.Count <= l.policy.Max,
		Limit:     l.policy.Max,
		Remaining: remaining,
		Count:     w.Count,
		ResetAt:   w.Start.Add(l.policy.Window),
	}, nil
}
