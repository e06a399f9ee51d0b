package adapter

import "github.com/tokmz/realtime/pkg/errors"

var (
	// ErrNoSession 尚未调用 ConnectToChat，无法确定消息归属
	ErrNoSession = errors.New(5101, "adapter: chat session not established")
	// ErrInvalidArgument 参数错误
	ErrInvalidArgument = errors.New(5102, "adapter: invalid argument")
)
