// Package event はWebSocketで配信する通知メッセージの型を提供する。
//
// メッセージは {type, message?, data?} 形式のJSONとしてクライアントへ送られる。
// 生成後は不変であり、エンコード結果は生成時に一度だけ計算される。
package event

import "encoding/json"

// Type は通知メッセージの種類を表す。
type Type string

const (
	// TypeWelcome は接続直後に送るウェルカムメッセージを表す。
	TypeWelcome Type = "welcome"
	// TypeNotification は汎用の通知を表す。
	TypeNotification Type = "notification"
	// TypeOrderUpdated は注文状態の変更を表す。
	TypeOrderUpdated Type = "order_updated"
)

// WelcomeText は接続直後にクライアントへ送る固定の挨拶文。
const WelcomeText = "MataTechへようこそ！"

// Message はクライアントへ送る通知メッセージ。
// フィールドは非公開であり、生成後に変更できない。
type Message struct {
	typ     Type
	message string
	data    json.RawMessage
	encoded []byte
}

// wireMessage はMessageのJSON表現。
type wireMessage struct {
	// Type はメッセージの種類。
	Type Type `json:"type"`
	// Message は人が読むためのテキスト。
	Message string `json:"message,omitempty"`
	// Data はメッセージ固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
}

// Type はメッセージの種類を返す。
func (m *Message) Type() Type { return m.typ }

// Text はメッセージのテキストを返す。
func (m *Message) Text() string { return m.message }

// Data はメッセージ固有データのコピーを返す。
func (m *Message) Data() json.RawMessage {
	if m.data == nil {
		return nil
	}
	return append(json.RawMessage(nil), m.data...)
}

// Bytes はエンコード済みのJSONを返す。戻り値を変更してはならない。
func (m *Message) Bytes() []byte { return m.encoded }

// MarshalJSON はエンコード済みのJSONを返す。
func (m *Message) MarshalJSON() ([]byte, error) {
	return m.encoded, nil
}
