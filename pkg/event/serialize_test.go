package event

import (
	"encoding/json"
	"errors"
	"testing"
)

// orderData はテスト用の注文通知データ。
type orderData struct {
	// OrderID は注文ID。
	OrderID string `json:"order_id"`
	// Status は注文状態。
	Status string `json:"status"`
}

// TestWelcome はウェルカムメッセージの形式を検証する。
func TestWelcome(t *testing.T) {
	t.Parallel()

	t.Run("typeとmessageのみを持つJSONになること", func(t *testing.T) {
		t.Parallel()

		m := Welcome()

		var got map[string]any
		if err := json.Unmarshal(m.Bytes(), &got); err != nil {
			t.Fatalf("JSONのパースに失敗: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("フィールド数 = %d, want 2: %v", len(got), got)
		}
		if got["type"] != "welcome" {
			t.Errorf("type = %v, want %q", got["type"], "welcome")
		}
		if got["message"] != WelcomeText {
			t.Errorf("message = %v, want %q", got["message"], WelcomeText)
		}
	})

	t.Run("何度生成しても同じバイト列になること", func(t *testing.T) {
		t.Parallel()

		if string(Welcome().Bytes()) != string(Welcome().Bytes()) {
			t.Error("ウェルカムメッセージが一定でない")
		}
	})
}

// TestNew はNew関数でメッセージが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("データ付きのメッセージを生成できること", func(t *testing.T) {
		t.Parallel()

		m, err := New(TypeOrderUpdated, orderData{OrderID: "o-1", Status: "completed"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if m.Type() != TypeOrderUpdated {
			t.Errorf("Type = %q, want %q", m.Type(), TypeOrderUpdated)
		}

		var wire struct {
			Type string    `json:"type"`
			Data orderData `json:"data"`
		}
		if err := json.Unmarshal(m.Bytes(), &wire); err != nil {
			t.Fatalf("JSONのパースに失敗: %v", err)
		}
		if wire.Type != "order_updated" {
			t.Errorf("type = %q, want %q", wire.Type, "order_updated")
		}
		if wire.Data.OrderID != "o-1" || wire.Data.Status != "completed" {
			t.Errorf("data = %+v", wire.Data)
		}
	})

	t.Run("nilデータの場合dataフィールドが省略されること", func(t *testing.T) {
		t.Parallel()

		m, err := New(TypeNotification, nil)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if got := string(m.Bytes()); got != `{"type":"notification"}` {
			t.Errorf("JSON = %s", got)
		}
	})

	t.Run("空の種別はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("", nil); !errors.Is(err, ErrEmptyType) {
			t.Errorf("err = %v, want ErrEmptyType", err)
		}
	})

	t.Run("シリアライズできないデータはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(TypeNotification, make(chan int)); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestFromRaw は生JSONからの生成を検証する。
func TestFromRaw(t *testing.T) {
	t.Parallel()

	t.Run("受け取ったデータを変更せずに保持すること", func(t *testing.T) {
		t.Parallel()

		raw := json.RawMessage(`{"order_id":"o-2"}`)
		m, err := FromRaw(TypeOrderUpdated, "", raw)
		if err != nil {
			t.Fatalf("FromRaw()でエラーが発生: %v", err)
		}
		raw[2] = 'X'
		if string(m.Data()) != `{"order_id":"o-2"}` {
			t.Errorf("Data = %s", m.Data())
		}
	})

	t.Run("不正なJSONはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := FromRaw(TypeOrderUpdated, "", json.RawMessage(`{broken`)); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestDecodeData はDecodeDataを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	m, err := New(TypeOrderUpdated, orderData{OrderID: "o-3", Status: "pending"})
	if err != nil {
		t.Fatalf("New()でエラーが発生: %v", err)
	}

	got, err := DecodeData[orderData](m)
	if err != nil {
		t.Fatalf("DecodeData()でエラーが発生: %v", err)
	}
	if got.OrderID != "o-3" || got.Status != "pending" {
		t.Errorf("data = %+v", got)
	}
}
