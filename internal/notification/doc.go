// Package notification はWebSocket接続の管理と通知の配信を行う。
//
// 接続はアップグレード時に一意なIDを割り当てられ、
// Connecting → Open → Closed の状態を遷移する。Closedは終端状態で、
// 受信エラー・送信エラー・送信キューの溢れのいずれでも接続はClosedになり
// レジストリから取り除かれる。
//
// Broadcasterは特定の接続または全接続へ通知を送る。
// 送信は接続ごとのキューへの投入で行い、実際の書き込みは接続ごとの
// 書き込みゴルーチンが担う。
package notification
