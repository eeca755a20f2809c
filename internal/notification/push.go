package notification

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/event"
	"github.com/nao1215/matatech/pkg/middleware"
	"go.uber.org/zap"
)

// pushRequest は通知送信リクエストのJSON構造。
type pushRequest struct {
	// Type は通知の種類。
	Type string `json:"type" binding:"required,max=64"`
	// Message は通知の本文。
	Message string `json:"message" binding:"max=1024"`
	// Data は通知固有のデータ。そのままクライアントへ届ける。
	Data json.RawMessage `json:"data"`
}

// toMessage はリクエストを通知メッセージに変換する。
func (r pushRequest) toMessage() (*event.Message, error) {
	return event.FromRaw(event.Type(r.Type), r.Message, r.Data)
}

// RegisterRoutes は通知送信APIをルーターグループに登録する。
// 認証は呼び出し側のグループで適用する。
func (b *Broadcaster) RegisterRoutes(rg gin.IRoutes) {
	// 全接続への通知送信
	rg.POST("/notifications", b.handleSendAll())
	// 特定の接続への通知送信
	rg.POST("/notifications/:id", b.handleSendOne())
}

// handleSendAll は全接続へ通知を送るハンドラ。
func (b *Broadcaster) handleSendAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, ok := bindMessage(c)
		if !ok {
			return
		}

		delivered := b.SendToAll(msg)
		b.logger.Info("通知を送信しました",
			zap.String("service", middleware.GetService(c)),
			zap.String("type", string(msg.Type())),
			zap.Int("delivered", delivered),
		)
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	}
}

// handleSendOne は指定された接続へ通知を送るハンドラ。
func (b *Broadcaster) handleSendOne() gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, ok := bindMessage(c)
		if !ok {
			return
		}

		id := c.Param("id")
		if err := b.SendToOne(id, msg); err != nil {
			if errors.Is(err, ErrConnectionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "接続が見つかりません"})
				return
			}
			// 送信できなかった接続は既に切断済み
			c.JSON(http.StatusGone, gin.H{"error": "接続が切断されたため通知を送信できませんでした"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": 1})
	}
}

// bindMessage はリクエストボディを通知メッセージに変換する。
// 失敗した場合は400を返してfalseを返す。
func bindMessage(c *gin.Context) (*event.Message, bool) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
		return nil, false
	}
	msg, err := req.toMessage()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
		return nil, false
	}
	return msg, true
}
