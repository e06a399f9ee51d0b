package ws

// Metrics 监控接口，endpoint 用于区分不同连接
type Metrics interface {
	// 连接指标
	IncrementConnects(endpoint string)
	IncrementConnectErrors(endpoint string, code int)
	IncrementReconnectAttempts(endpoint string)
	IncrementHeartbeatTimeouts(endpoint string)
	SetState(endpoint string, state State)

	// 消息指标
	IncrementMessagesSent(endpoint, msgType string)
	IncrementMessagesReceived(endpoint, msgType string)
	IncrementInvalidMessages(endpoint string)
	IncrementDroppedMessages(endpoint string)
	SetQueueLength(endpoint string, n int)
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnects(endpoint string)                   {}
func (m *NoopMetrics) IncrementConnectErrors(endpoint string, code int)    {}
func (m *NoopMetrics) IncrementReconnectAttempts(endpoint string)          {}
func (m *NoopMetrics) IncrementHeartbeatTimeouts(endpoint string)          {}
func (m *NoopMetrics) SetState(endpoint string, state State)               {}
func (m *NoopMetrics) IncrementMessagesSent(endpoint, msgType string)      {}
func (m *NoopMetrics) IncrementMessagesReceived(endpoint, msgType string)  {}
func (m *NoopMetrics) IncrementInvalidMessages(endpoint string)            {}
func (m *NoopMetrics) IncrementDroppedMessages(endpoint string)            {}
func (m *NoopMetrics) SetQueueLength(endpoint string, n int)               {}
