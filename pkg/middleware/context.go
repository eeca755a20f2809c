package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	// BodyKey はパース済みリクエストボディを格納するコンテキストキー。
	// JSONの場合は any、フォームの場合は url.Values が格納される。
	BodyKey = "body"
	// RejectReasonKey はフィルタによる拒否理由を格納するコンテキストキー。
	RejectReasonKey = "reject_reason"
)

// 拒否理由。メトリクスのラベルとアクセスログに使用する。
const (
	// ReasonOriginNotAllowed は許可されていないオリジンを表す。
	ReasonOriginNotAllowed = "origin_not_allowed"
	// ReasonRateLimited はレート制限の超過を表す。
	ReasonRateLimited = "rate_limited"
	// ReasonPayloadTooLarge はボディサイズの超過を表す。
	ReasonPayloadTooLarge = "payload_too_large"
	// ReasonMalformedBody はボディのパース失敗を表す。
	ReasonMalformedBody = "malformed_body"
)

// reject は拒否理由を記録し、エラーレスポンスを返してチェーンを中断する。
func reject(c *gin.Context, status int, reason, message string) {
	c.Set(RejectReasonKey, reason)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// RejectReason はフィルタが記録した拒否理由を返す。拒否されていない場合は空文字列。
func RejectReason(c *gin.Context) string {
	return c.GetString(RejectReasonKey)
}

// Body はBodyLimitがパースしたリクエストボディを返す。
func Body(c *gin.Context) (any, bool) {
	return c.Get(BodyKey)
}
