package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout は転送1件あたりの既定のタイムアウト。
const defaultTimeout = 30 * time.Second

// ForwardedHeaders は上流サービスへそのまま転送するリクエストヘッダー。
var ForwardedHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	"Cookie",
	"X-Request-ID",
}

// ErrInvalidBaseURL は上流サービスのURLが不正な場合のエラー。
var ErrInvalidBaseURL = errors.New("上流サービスのURLが不正です")

// Client は1つの上流サービスへリクエストを転送するHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は転送先サービスのベースURL。
	baseURL *url.URL
}

// New は新しい転送用HTTPクライアントを生成する。
// baseURLには転送先サービスのベースURL（例: "http://orders:5103"）を指定する。
// timeoutが0以下の場合は30秒とする。
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidBaseURL, baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.RawQuery != "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			// リダイレクトはクライアントにそのまま返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: u,
	}, nil
}

// BaseURL は転送先サービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request は上流サービスへ転送するリクエスト。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はマウント先のプレフィックスを取り除いたパス。
	Path string
	// RawQuery はエンコード済みのクエリ文字列。
	RawQuery string
	// Header は元のリクエストヘッダー。ForwardedHeadersのみ転送する。
	Header http.Header
	// ClientIP はX-Forwarded-Forに追記するクライアントのIPアドレス。
	ClientIP string
	// Body はリクエストボディ。nilの場合はボディなし。
	Body io.Reader
	// ContentLength はボディのバイト数。不明な場合は-1。
	ContentLength int64
}

// Response は上流サービスのレスポンス。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// Forward はリクエストを上流サービスへ転送し、レスポンスを返す。
// 上流サービスのステータスコードはエラーとして扱わない。
func (c *Client) Forward(ctx context.Context, r Request) (*Response, error) {
	target := c.resolve(r.Path, r.RawQuery)

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}
	for _, key := range ForwardedHeaders {
		for _, v := range r.Header.Values(key) {
			req.Header.Add(key, v)
		}
	}
	if r.ClientIP != "" {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+r.ClientIP)
		} else {
			req.Header.Set("X-Forwarded-For", r.ClientIP)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: url=%s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: url=%s: %w", target, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// resolve はベースURLに転送先のパスとクエリを連結する。
func (c *Client) resolve(path, rawQuery string) string {
	u := *c.baseURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}
