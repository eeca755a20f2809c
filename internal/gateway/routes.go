package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	// ErrDuplicatePrefix は同じプレフィックスを二重に登録したことを表す。
	ErrDuplicatePrefix = errors.New("プレフィックスが重複しています")
	// ErrInvalidPrefix はプレフィックスの形式が不正なことを表す。
	ErrInvalidPrefix = errors.New("プレフィックスが不正です")
	// ErrRouteTableFrozen は確定後のルートテーブルへ登録しようとしたことを表す。
	ErrRouteTableFrozen = errors.New("ルートテーブルは確定済みです")
)

// notFoundMessage は一致するルートが無い場合の応答メッセージ。
const notFoundMessage = "ページが見つかりません"

// remainingPathKey はプレフィックスを取り除いたパスを格納するコンテキストキー。
const remainingPathKey = "route_remaining_path"

// Route はパスプレフィックスとハンドラグループの対応。
type Route struct {
	// Prefix はマウント先のパスプレフィックス。
	Prefix string
	// Handler はハンドラグループ。
	Handler gin.HandlerFunc
}

// RouteTable はパスプレフィックスからハンドラグループを引く表。
// 起動時に構築してFreezeした後は読み取り専用で、並行に参照できる。
type RouteTable struct {
	routes []Route
	frozen bool
}

// NewRouteTable は空のRouteTableを生成する。
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Mount はprefix配下のリクエストを処理するハンドラグループを登録する。
// ハンドラはRemainingPathでプレフィックスを除いたパスを取得できる。
func (t *RouteTable) Mount(prefix string, h gin.HandlerFunc) error {
	if t.frozen {
		return ErrRouteTableFrozen
	}
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	for _, r := range t.routes {
		if r.Prefix == prefix {
			return fmt.Errorf("%w: %s", ErrDuplicatePrefix, prefix)
		}
	}
	t.routes = append(t.routes, Route{Prefix: prefix, Handler: h})
	return nil
}

// Freeze は登録を締め切り、長いプレフィックスから順に並べる。
func (t *RouteTable) Freeze() {
	sort.SliceStable(t.routes, func(i, j int) bool {
		return len(t.routes[i].Prefix) > len(t.routes[j].Prefix)
	})
	t.frozen = true
}

// Routes は登録されたルートを照合順に返す。
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match はパスに一致する最も長いプレフィックスのルートを返す。
// 一致はセグメント単位で、/api/auth は /api/auth と /api/auth/... に一致し
// /api/authx には一致しない。
func (t *RouteTable) Match(p string) (Route, bool) {
	for _, r := range t.routes {
		if p == r.Prefix || strings.HasPrefix(p, r.Prefix+"/") {
			return r, true
		}
	}
	return Route{}, false
}

// Dispatch はリクエストを一致するハンドラグループへ渡す。
// 一致しない場合は404を返す。
func (t *RouteTable) Dispatch(c *gin.Context) {
	r, ok := t.Match(c.Request.URL.Path)
	if !ok {
		notFound(c)
		return
	}

	rest := strings.TrimPrefix(c.Request.URL.Path, r.Prefix)
	if rest == "" {
		rest = "/"
	}
	c.Set(remainingPathKey, rest)
	// NoRouteから呼ばれるとステータスが404で初期化されているため戻す
	c.Status(http.StatusOK)
	r.Handler(c)
}

// RemainingPath はマウント先のプレフィックスを取り除いたパスを返す。
func RemainingPath(c *gin.Context) string {
	if rest := c.GetString(remainingPathKey); rest != "" {
		return rest
	}
	return c.Request.URL.Path
}

// notFound は404エラーを返す。
func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFoundMessage})
}

// validatePrefix はプレフィックスの形式を検証する。
func validatePrefix(prefix string) error {
	if prefix == "" || prefix == "/" || !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	if path.Clean(prefix) != prefix || strings.ContainsAny(prefix, ":*?#") {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return nil
}
