package notification

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrConnectionClosed は閉じた接続への操作を表す。
	ErrConnectionClosed = errors.New("接続は既に閉じられています")
	// ErrSendQueueFull は送信キューが溢れたことを表す。
	ErrSendQueueFull = errors.New("送信キューが一杯です")
	// ErrConnectionNotFound は指定IDの接続が存在しないことを表す。
	ErrConnectionNotFound = errors.New("接続が見つかりません")
	// ErrConnectionNotOpen はOpenでない接続を登録しようとしたことを表す。
	ErrConnectionNotOpen = errors.New("接続が開通していません")
	// ErrRegistryClosed はCloseAll後のRegistryへ登録しようとしたことを表す。
	ErrRegistryClosed = errors.New("レジストリは閉じられています")
)

// State は接続の状態。
type State int32

const (
	// StateConnecting はアップグレード直後で、まだレジストリに登録されていない状態。
	StateConnecting State = iota
	// StateOpen は送受信が可能な状態。
	StateOpen
	// StateClosed は終端状態。
	StateClosed
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn は接続が使用するWebSocketの操作。*websocket.Conn が実装する。
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

// closeGrace はクローズフレーム送信の猶予。
const closeGrace = time.Second

// Connection は1本のWebSocket接続。
type Connection struct {
	id          string
	conn        Conn
	send        chan []byte
	done        chan struct{}
	connectedAt time.Time

	mu    sync.Mutex
	state State
}

// newConnection はConnecting状態の接続を生成する。
func newConnection(conn Conn, sendBuffer int) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
		state:       StateConnecting,
	}
}

// ID は接続の一意識別子を返す。
func (c *Connection) ID() string { return c.id }

// RemoteAddr は接続元のアドレスを返す。
func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ConnectedAt は接続を受け付けた時刻を返す。
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// State は現在の状態を返す。
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done は接続がClosedになると閉じられるチャネルを返す。
func (c *Connection) Done() <-chan struct{} { return c.done }

// open はConnectingからOpenへ遷移する。
func (c *Connection) open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting:
		c.state = StateOpen
		return nil
	case StateClosed:
		return ErrConnectionClosed
	default:
		return nil
	}
}

// close はClosedへ遷移し、下位の接続を閉じる。
// 今回の呼び出しで遷移した場合にtrueを返す。
func (c *Connection) close() bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.Close()
	return true
}

// shutdown はクローズフレームを送ってから接続を閉じる。
func (c *Connection) shutdown(code int, text string) bool {
	if c.State() == StateClosed {
		return false
	}
	// WriteControlは書き込みゴルーチンと並行に呼び出せる
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(closeGrace))
	return c.close()
}

// enqueue はメッセージを送信キューに投入する。
// ブロックせず、キューが一杯の場合はErrSendQueueFullを返す。
func (c *Connection) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}
