package notification

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeConn はテスト用のConn実装。
// ReadMessageはCloseされるまでブロックする。
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	controls []int
	closed   bool
	closedCh chan struct{}
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{closedCh: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closedCh
	return 0, nil, errors.New("use of closed connection")
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 4000} }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) controlCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.controls)
}

// openConnection はOpen状態の接続を生成する。
func openConnection(buffer int) (*Connection, *fakeConn) {
	fc := newFakeConn()
	c := newConnection(fc, buffer)
	if err := c.open(); err != nil {
		panic(err)
	}
	return c, fc
}

// drain は送信キューに溜まったメッセージを取り出す。
func drain(c *Connection) []string {
	var out []string
	for {
		select {
		case m := <-c.send:
			out = append(out, string(m))
		default:
			return out
		}
	}
}
