// Package httpclient はゲートウェイから上流サービスへリクエストを転送する
// HTTPクライアントを提供する。
//
// ハンドラグループ（認証、サービス、注文、管理、KYC）はそれぞれ独立した
// 上流サービスで、ゲートウェイはマウント先のプレフィックスを取り除いた
// パスでリクエストを転送する。
package httpclient
