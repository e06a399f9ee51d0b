package ws

import "github.com/tokmz/realtime/pkg/errors"

// 错误码
const (
	CodeTimeout          = 5001
	CodeRefused          = 5002
	CodeUnauthorized     = 5003
	CodeTransport        = 5004
	CodeHeartbeatTimeout = 5005
	CodeQueueOverflow    = 5006
	CodeClosed           = 5007
	CodeInvalidConfig    = 5008
	CodeOffline          = 5009
)

var (
	// ErrConnectionTimeout 建连超时，走重连流程
	ErrConnectionTimeout = errors.New(CodeTimeout, "ws: connection timeout")
	// ErrRefused 服务端拒绝连接，走重连流程
	ErrRefused = errors.New(CodeRefused, "ws: connection refused")
	// ErrUnauthorized 握手鉴权失败，不重试
	ErrUnauthorized = errors.New(CodeUnauthorized, "ws: unauthorized")
	// ErrTransport 连接中途异常断开
	ErrTransport = errors.New(CodeTransport, "ws: transport error")
	// ErrHeartbeatTimeout 心跳检测失败，按 ErrTransport 处理
	ErrHeartbeatTimeout = errors.New(CodeHeartbeatTimeout, "ws: heartbeat timeout")
	// ErrQueueOverflow 发送队列已满，最旧消息被丢弃
	ErrQueueOverflow = errors.New(CodeQueueOverflow, "ws: outbound queue overflow")
	// ErrClosed 连接已被主动关闭
	ErrClosed = errors.New(CodeClosed, "ws: connection closed")
	// ErrInvalidConfig 配置错误
	ErrInvalidConfig = errors.New(CodeInvalidConfig, "ws: invalid config")
	// ErrOffline 网络离线
	ErrOffline = errors.New(CodeOffline, "ws: network offline")
)

// Retryable 是否可通过重连恢复
func Retryable(err error) bool {
	switch errors.CodeOf(err) {
	case CodeUnauthorized, CodeClosed, CodeInvalidConfig:
		return false
	}
	return true
}
