package gateway

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/matatech/pkg/httpclient"
)

// returnedHeaders は上流サービスのレスポンスからクライアントへ返すヘッダー。
var returnedHeaders = []string{
	"Cache-Control",
	"ETag",
	"Last-Modified",
	"Location",
	"Set-Cookie",
	"X-Request-ID",
}

// upstreamGroup はハンドラグループの処理を上流サービスへ転送するハンドラを返す。
// 転送に失敗した場合はエラーを登録し、障害境界に応答を任せる。
func upstreamGroup(client *httpclient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := client.Forward(c.Request.Context(), httpclient.Request{
			Method:        c.Request.Method,
			Path:          RemainingPath(c),
			RawQuery:      c.Request.URL.RawQuery,
			Header:        c.Request.Header,
			ClientIP:      c.ClientIP(),
			Body:          c.Request.Body,
			ContentLength: c.Request.ContentLength,
		})
		if err != nil {
			_ = c.Error(fmt.Errorf("内部サービスとの通信に失敗: %w", err))
			return
		}

		h := c.Writer.Header()
		for _, key := range returnedHeaders {
			for _, v := range resp.Header.Values(key) {
				h.Add(key, v)
			}
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.StatusCode, contentType, resp.Body)
	}
}

// staticGroup はディレクトリのファイルを配信するハンドラを返す。
// ディレクトリの一覧は返さず、存在しないファイルは404のJSONを返す。
func staticGroup(dir string) gin.HandlerFunc {
	fsys := gin.Dir(dir, false)
	fileServer := http.FileServer(fsys)

	return func(c *gin.Context) {
		name := RemainingPath(c)
		f, err := fsys.Open(name)
		if err != nil {
			notFound(c)
			return
		}
		info, err := f.Stat()
		_ = f.Close()
		if err != nil || info.IsDir() {
			notFound(c)
			return
		}

		req := c.Request.Clone(c.Request.Context())
		req.URL.Path = name
		req.URL.RawPath = ""
		fileServer.ServeHTTP(c.Writer, req)
	}
}
