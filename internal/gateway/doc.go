// Package gateway はMataTech API Gatewayの内部実装を提供する。
//
// 全リクエストはアドミッションフィルタ（セキュリティヘッダー、オリジン、
// レート制限、ボディ制限）を通過した後、パスプレフィックスで
// ハンドラグループに振り分けられる。どこで発生した予期しないエラーも
// 障害境界で汎用の500エラーに変換される。
//
// WebSocketのアップグレード要求はルーティングを経由せず
// 通知エンドポイントへ渡される。
package gateway
