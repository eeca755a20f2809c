package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginNotAllowedMessage は許可されていないオリジンへの応答メッセージ。
// WebSocketのアップグレード拒否でも同じ文言を返す。
const OriginNotAllowedMessage = "このオリジンからのアクセスは許可されていません"

// OriginPolicy はアクセスを許可するオリジンの集合。
// HTTPのオリジンフィルタとWebSocketのアップグレード判定で共有する。
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy は新しいOriginPolicyを生成する。
func NewOriginPolicy(allowedOrigins []string) *OriginPolicy {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &OriginPolicy{allowed: allowed}
}

// Allows はoriginからのアクセスを許可するかどうかを返す。
// Originヘッダーを持たないリクエスト（同一オリジンやブラウザ以外のクライアント）は許可する。
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// CheckOrigin はリクエストのOriginヘッダーを判定する。
// websocket.Upgrader.CheckOrigin にそのまま渡せる。
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	return p.Allows(r.Header.Get("Origin"))
}

// Origin はオリジン許可リストによるアクセス制御を行うGinミドルウェアを返す。
//
// 許可リストにないオリジンからのリクエストは403で拒否する。
// 許可されたオリジンには資格情報付きのクロスオリジンアクセスを許可し、
// プリフライトリクエストには204で応答する。
func Origin(policy *OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !policy.Allows(origin) {
			reject(c, http.StatusForbidden, ReasonOriginNotAllowed, OriginNotAllowedMessage)
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE")
			if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
				h.Add("Vary", "Access-Control-Request-Headers")
			} else {
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
			h.Set("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
