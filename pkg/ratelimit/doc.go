// Package ratelimit は固定ウィンドウ方式のレート制限を提供する。
//
// クライアント識別子ごとに {ウィンドウ開始時刻, リクエスト数} を保持し、
// ウィンドウが存在しないか期限切れの場合は新しいウィンドウを開始する。
// 開始・加算・判定に必要な読み書きは各Store実装の中で識別子単位に
// アトミックに行われるため、同一クライアントからの同時リクエストが
// 上限を超えて許可されることはない。
//
// Storeの実装:
//   - MemoryStore: プロセス内のマップ（再起動で消える）
//   - RedisStore: 複数インスタンスで共有するRedis
//   - SQLiteStore: 同一ホスト上の複数プロセスで共有するSQLiteファイル
package ratelimit
