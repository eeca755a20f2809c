package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/logger"
	"go.uber.org/zap"
)

// InternalErrorMessage は予期しないエラーの際にクライアントへ返す唯一のメッセージ。
const InternalErrorMessage = "内部サーバーエラーが発生しました"

// Recovery はパイプライン全体を包む障害境界のGinミドルウェアを返す。
//
// 後続のフィルタやハンドラで発生したパニックと、c.Error で登録された
// エラーを捕捉し、詳細をログに出力したうえで500エラーを返す。
// レスポンスがすでに書き込まれている場合はログ出力のみ行う。
func Recovery(zl *zap.Logger) gin.HandlerFunc {
	zl = logger.OrNop(zl)

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			// クライアントの切断はnet/httpに処理させる
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}
			zl.Error("パニックが発生しました",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			fail(c)
		}()

		c.Next()

		if len(c.Errors) > 0 {
			zl.Error("リクエスト処理中にエラーが発生しました",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Strings("errors", c.Errors.Errors()),
			)
			fail(c)
		}
	}
}

// fail は未書き込みの場合に限り500エラーを返す。
func fail(c *gin.Context) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": InternalErrorMessage,
	})
}
