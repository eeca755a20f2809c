package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// payloadTooLargeMessage はボディサイズ超過時の応答メッセージ。
	payloadTooLargeMessage = "リクエストボディが大きすぎます"
	// malformedBodyMessage はボディのパース失敗時の応答メッセージ。
	malformedBodyMessage = "リクエストボディの形式が不正です"
)

// BodyLimit はリクエストボディのサイズを制限し、JSONとフォームをパースする
// Ginミドルウェアを返す。
//
// maxBytesを超えるボディは413で拒否する。Content-Lengthで超過が分かる場合は
// ボディを読まずに拒否する。パース結果は BodyKey に格納し、
// 元のボディは後続のハンドラが読めるように c.Request.Body へ戻す。
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		if req.Body == nil || req.Body == http.NoBody {
			c.Next()
			return
		}
		if req.ContentLength > maxBytes {
			reject(c, http.StatusRequestEntityTooLarge, ReasonPayloadTooLarge, payloadTooLargeMessage)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, req.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				reject(c, http.StatusRequestEntityTooLarge, ReasonPayloadTooLarge, payloadTooLargeMessage)
				return
			}
			_ = c.Error(fmt.Errorf("リクエストボディの読み取りに失敗: %w", err))
			c.Abort()
			return
		}
		req.Body = io.NopCloser(bytes.NewReader(raw))

		body, err := parseBody(c.ContentType(), raw)
		if err != nil {
			reject(c, http.StatusBadRequest, ReasonMalformedBody, malformedBodyMessage)
			return
		}
		if body != nil {
			c.Set(BodyKey, body)
		}

		c.Next()
	}
}

// errJSONNotContainer はJSONの最上位がオブジェクトでも配列でもないことを表す。
var errJSONNotContainer = errors.New("JSONの最上位はオブジェクトか配列である必要があります")

// parseBody はContent-Typeに応じてボディをパースする。
// メディアタイプは大文字小文字を区別しない。JSONは最上位がオブジェクトか配列のもののみ受け付ける。
// パース対象外のContent-Typeや空のボディはnilを返す。
func parseBody(contentType string, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	mediaType := strings.ToLower(contentType)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("JSONのパースに失敗: %w", err)
		}
		switch v.(type) {
		case map[string]any, []any:
			return v, nil
		default:
			return nil, errJSONNotContainer
		}
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("フォームのパースに失敗: %w", err)
		}
		return values, nil
	default:
		return nil, nil
	}
}
