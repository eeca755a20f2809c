package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/middleware"
)

// newOpsEngine は運用APIのGinエンジンを生成する。
//
// 公開リスナーとは別のポートで、メトリクス・ヘルスチェックと、
// 内部サービスから通知を送るためのAPIを提供する。
// 通知APIはサービストークンで保護する。
func (s *Server) newOpsEngine() *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(
		middleware.AccessLog(s.logger.Named("ops")),
		middleware.Recovery(s.logger),
	)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "gateway",
			"connections": s.registry.Len(),
		})
	})

	internal := router.Group("/",
		middleware.JWTAuth(s.cfg.InternalJWTSecret),
		middleware.BodyLimit(s.cfg.BodyLimit),
	)
	s.broadcaster.RegisterRoutes(internal)

	return router
}
