package wstest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tokmz/realtime/pkg/ws"
)

// DialFunc 自定义拨号行为
type DialFunc func(ctx context.Context, url string) (ws.Conn, error)

// FakeTransport 内存传输层，默认每次拨号都成功并返回新的 FakeConn
type FakeTransport struct {
	mu      sync.Mutex
	handler DialFunc
	urls    []string
	conns   []*FakeConn
}

// NewFakeTransport 创建传输层
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// SetHandler 替换拨号行为；nil 恢复默认
func (t *FakeTransport) SetHandler(fn DialFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

// Dial 实现 ws.Transport
func (t *FakeTransport) Dial(ctx context.Context, url string) (ws.Conn, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	fn := t.handler
	t.mu.Unlock()

	if fn == nil {
		fn = Accept
	}
	conn, err := fn(ctx, url)
	if fc, ok := conn.(*FakeConn); ok && err == nil {
		t.mu.Lock()
		t.conns = append(t.conns, fc)
		t.mu.Unlock()
	}
	return conn, err
}

// DialCount 拨号次数
func (t *FakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

// URLs 历次拨号地址
func (t *FakeTransport) URLs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.urls...)
}

// Conns 成功建立的连接
func (t *FakeTransport) Conns() []*FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeConn(nil), t.conns...)
}

// LastConn 最近一次建立的连接
func (t *FakeTransport) LastConn() *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// Accept 立即成功
func Accept(ctx context.Context, url string) (ws.Conn, error) {
	return NewFakeConn(), nil
}

// Hang 永不完成，直到 ctx 被取消
func Hang(ctx context.Context, url string) (ws.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// Fail 立即返回 err
func Fail(err error) DialFunc {
	return func(ctx context.Context, url string) (ws.Conn, error) {
		return nil, err
	}
}

// Gate 阻塞到 release 被关闭后成功
func Gate(release <-chan struct{}) DialFunc {
	return func(ctx context.Context, url string) (ws.Conn, error) {
		select {
		case <-release:
			return NewFakeConn(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FakeConn 内存连接：Inject 注入入站帧，Written 查看出站帧
type FakeConn struct {
	inbound chan frame
	closed  chan struct{}
	once    sync.Once

	// 上一帧的完成信号，读协程再次进入 Read 时关闭
	lastDone chan struct{}

	mu       sync.Mutex
	readErr  error
	writeErr error
	written  []ws.Envelope
}

type frame struct {
	data []byte
	done chan struct{}
}

// NewFakeConn 创建连接
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan frame),
		closed:  make(chan struct{}),
	}
}

// Read 实现 ws.Conn
func (c *FakeConn) Read() ([]byte, error) {
	if c.lastDone != nil {
		close(c.lastDone)
		c.lastDone = nil
	}
	select {
	case f := <-c.inbound:
		c.lastDone = f.done
		return f.data, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
}

// Write 实现 ws.Conn
func (c *FakeConn) Write(data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.IsClosed() {
		return errors.New("wstest: write on closed conn")
	}
	var env ws.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.written = append(c.written, env)
	return nil
}

// Close 实现 ws.Conn
func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// IsClosed 是否已关闭
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Fail 模拟对端异常断开，Read 返回 err
func (c *FakeConn) Fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	_ = c.Close()
}

// SetWriteError 之后的写入均返回 err
func (c *FakeConn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Inject 注入一条入站信封，返回时该帧已被读协程处理完毕
func (c *FakeConn) Inject(env ws.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return c.InjectRaw(data)
}

// InjectRaw 注入原始入站帧，返回时该帧已被读协程处理完毕；连接已关闭时返回 false
func (c *FakeConn) InjectRaw(data []byte) bool {
	f := frame{data: data, done: make(chan struct{})}
	select {
	case c.inbound <- f:
	case <-c.closed:
		return false
	}
	select {
	case <-f.done:
	case <-c.closed:
	}
	return true
}

// Written 已写出的信封
func (c *FakeConn) Written() []ws.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ws.Envelope(nil), c.written...)
}

// WrittenTypes 已写出信封的类型序列
func (c *FakeConn) WrittenTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, env := range c.written {
		out = append(out, env.Type)
	}
	return out
}
