package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyType はメッセージ種別が空の場合に返される。
var ErrEmptyType = errors.New("メッセージ種別が空です")

// New は新しい通知メッセージを生成する。
// dataにはメッセージ固有のデータ構造体を渡す。JSON形式にシリアライズされる。
// dataがnilの場合はdataフィールドを持たないメッセージになる。
func New(typ Type, data any) (*Message, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("メッセージデータのシリアライズに失敗: %w", err)
		}
		raw = b
	}
	return build(typ, "", raw)
}

// NewText はテキストのみを持つ通知メッセージを生成する。
func NewText(typ Type, text string) (*Message, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	return build(typ, text, nil)
}

// Welcome は接続直後に送るウェルカムメッセージを生成する。
func Welcome() *Message {
	m, err := build(TypeWelcome, WelcomeText, nil)
	if err != nil {
		// 固定値のエンコードは失敗しない。
		panic(err)
	}
	return m
}

// FromRaw はテキストとJSONデータから通知メッセージを生成する。
// 運用APIで受け取ったペイロードをそのまま配信するために使用する。
func FromRaw(typ Type, text string, data json.RawMessage) (*Message, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	if len(data) > 0 && !json.Valid(data) {
		return nil, fmt.Errorf("メッセージデータが不正なJSONです")
	}
	var raw json.RawMessage
	if len(data) > 0 {
		raw = append(json.RawMessage(nil), data...)
	}
	return build(typ, text, raw)
}

func build(typ Type, text string, data json.RawMessage) (*Message, error) {
	encoded, err := json.Marshal(wireMessage{Type: typ, Message: text, Data: data})
	if err != nil {
		return nil, fmt.Errorf("メッセージのエンコードに失敗: %w", err)
	}
	return &Message{
		typ:     typ,
		message: text,
		data:    data,
		encoded: encoded,
	}, nil
}

// DecodeData はメッセージのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](m *Message) (*T, error) {
	var data T
	if err := json.Unmarshal(m.data, &data); err != nil {
		return nil, fmt.Errorf("メッセージデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
