// Package middleware はゲートウェイのリクエスト処理パイプラインを構成する
// Ginミドルウェアを提供する。
//
// アドミッションフィルタ（セキュリティヘッダー、オリジン許可リスト、
// レート制限、ボディサイズ制限とパース）と、パイプライン全体を包む
// 障害境界（Recovery）、アクセスログ、メトリクス、運用API用の
// サービストークン認証を含む。
//
// フィルタがリクエストを拒否した場合は {"error": "..."} 形式のJSONで応答し、
// 拒否理由をコンテキストに記録してチェーンを中断する。
package middleware
