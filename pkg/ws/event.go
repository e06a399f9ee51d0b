package ws

import "time"

// EventType 事件类型
type EventType string

const (
	EventOpen            EventType = "open"
	EventMessage         EventType = "message"
	EventError           EventType = "error"
	EventClosed          EventType = "closed"
	EventReconnecting    EventType = "reconnecting"
	EventReconnectFailed EventType = "reconnect_failed"
	EventStateChanged    EventType = "state_changed"
	EventQueueOverflow   EventType = "queue_overflow"
)

// Event 连接核心发出的事件
type Event interface {
	Type() EventType
	isEvent()
}

// EventHandler 事件处理器
type EventHandler func(Event)

// OpenEvent 连接建立
type OpenEvent struct {
	Endpoint string
}

// MessageEvent 收到业务消息（不含 pong）
type MessageEvent struct {
	Envelope Envelope
}

// ErrorEvent 连接错误，Err 为带错误码的 *errors.Error
type ErrorEvent struct {
	Err error
}

// ClosedEvent 主动关闭，每次 Disconnect 仅一次
type ClosedEvent struct {
	Reason string
}

// ReconnectingEvent 已安排第 Attempt 次重连
type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

// ReconnectFailedEvent 重连次数耗尽
type ReconnectFailedEvent struct {
	Attempts  int
	LastError error
}

// StateChangedEvent 状态变化
type StateChangedEvent struct {
	From State
	To   State
}

// QueueOverflowEvent 发送队列溢出，Dropped 为被丢弃的最旧消息，Err 为 ErrQueueOverflow
type QueueOverflowEvent struct {
	Dropped  Envelope
	Capacity int
	Err      error
}

func (OpenEvent) Type() EventType            { return EventOpen }
func (MessageEvent) Type() EventType         { return EventMessage }
func (ErrorEvent) Type() EventType           { return EventError }
func (ClosedEvent) Type() EventType          { return EventClosed }
func (ReconnectingEvent) Type() EventType    { return EventReconnecting }
func (ReconnectFailedEvent) Type() EventType { return EventReconnectFailed }
func (StateChangedEvent) Type() EventType    { return EventStateChanged }
func (QueueOverflowEvent) Type() EventType   { return EventQueueOverflow }

func (OpenEvent) isEvent()            {}
func (MessageEvent) isEvent()         {}
func (ErrorEvent) isEvent()           {}
func (ClosedEvent) isEvent()          {}
func (ReconnectingEvent) isEvent()    {}
func (ReconnectFailedEvent) isEvent() {}
func (StateChangedEvent) isEvent()    {}
func (QueueOverflowEvent) isEvent()   {}
