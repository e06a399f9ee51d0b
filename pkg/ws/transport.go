package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 一条已建立的连接
// Write 与 Close 由 Core 串行调用；Read 只在读协程中调用
type Conn interface {
	Read() ([]byte, error)
	Write(data []byte, deadline time.Time) error
	Close() error
}

// Transport 建立连接；ctx 被取消时必须尽快返回
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaTransport 基于 gorilla/websocket 的传输层
type GorillaTransport struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	ReadLimit int64
}

// NewGorillaTransport 创建默认传输层
func NewGorillaTransport() *GorillaTransport {
	return &GorillaTransport{
		Dialer: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Dial 握手；按响应状态码与网络错误归类为带错误码的错误
func (t *GorillaTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, url, t.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, classifyDialError(resp, err)
	}
	if t.ReadLimit > 0 {
		conn.SetReadLimit(t.ReadLimit)
	}
	return &gorillaConn{conn: conn}, nil
}

func classifyDialError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized.WithError(err)
		}
		return ErrRefused.WithError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout.WithError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionTimeout.WithError(err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrRefused.WithError(err)
	}
	return ErrTransport.WithError(err)
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) Read() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *gorillaConn) Write(data []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// closeFrameTimeout 发送关闭帧的最长等待
const closeFrameTimeout = 200 * time.Millisecond

// Close 尽量发送关闭帧后断开
func (c *gorillaConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeFrameTimeout))
	return c.conn.Close()
}
