// Package metrics 提供基于 Prometheus 的 ws.Metrics 实现
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tokmz/realtime/pkg/ws"
)

const (
	defaultNamespace = "realtime"
	subsystem        = "ws"
)

// Prometheus ws.Metrics 的 Prometheus 实现，所有指标以 endpoint 为标签
type Prometheus struct {
	Connects          *prometheus.CounterVec
	ConnectErrors     *prometheus.CounterVec
	ReconnectAttempts *prometheus.CounterVec
	HeartbeatTimeouts *prometheus.CounterVec
	State             *prometheus.GaugeVec

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	InvalidMessages  *prometheus.CounterVec
	DroppedMessages  *prometheus.CounterVec
	QueueLength      *prometheus.GaugeVec
}

var _ ws.Metrics = (*Prometheus)(nil)

// New 在 reg 上注册指标；reg 为 nil 时使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	f := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"endpoint"}, labels...))
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, []string{"endpoint"})
	}

	return &Prometheus{
		Connects:          counter("connects_total", "Successful connection establishments"),
		ConnectErrors:     counter("connect_errors_total", "Connection failures by error code", "code"),
		ReconnectAttempts: counter("reconnect_attempts_total", "Scheduled reconnect attempts"),
		HeartbeatTimeouts: counter("heartbeat_timeouts_total", "Connections declared dead by heartbeat"),
		State:             gauge("state", "Current connection state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 closed, 5 failed)"),

		MessagesSent:     counter("messages_sent_total", "Envelopes written to the socket", "type"),
		MessagesReceived: counter("messages_received_total", "Envelopes delivered to subscribers", "type"),
		InvalidMessages:  counter("invalid_messages_total", "Inbound frames that could not be decoded"),
		DroppedMessages:  counter("dropped_messages_total", "Queued envelopes dropped on overflow"),
		QueueLength:      gauge("queue_length", "Envelopes waiting in the outbound queue"),
	}
}

func (p *Prometheus) IncrementConnects(endpoint string) {
	p.Connects.WithLabelValues(endpoint).Inc()
}

func (p *Prometheus) IncrementConnectErrors(endpoint string, code int) {
	p.ConnectErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

func (p *Prometheus) IncrementReconnectAttempts(endpoint string) {
	p.ReconnectAttempts.WithLabelValues(endpoint).Inc()
}

func (p *Prometheus) IncrementHeartbeatTimeouts(endpoint string) {
	p.HeartbeatTimeouts.WithLabelValues(endpoint).Inc()
}

func (p *Prometheus) SetState(endpoint string, state ws.State) {
	p.State.WithLabelValues(endpoint).Set(float64(state))
}

func (p *Prometheus) IncrementMessagesSent(endpoint, msgType string) {
	p.MessagesSent.WithLabelValues(endpoint, msgType).Inc()
}

func (p *Prometheus) IncrementMessagesReceived(endpoint, msgType string) {
	p.MessagesReceived.WithLabelValues(endpoint, msgType).Inc()
}

func (p *Prometheus) IncrementInvalidMessages(endpoint string) {
	p.InvalidMessages.WithLabelValues(endpoint).Inc()
}

func (p *Prometheus) IncrementDroppedMessages(endpoint string) {
	p.DroppedMessages.WithLabelValues(endpoint).Inc()
}

func (p *Prometheus) SetQueueLength(endpoint string, n int) {
	p.QueueLength.WithLabelValues(endpoint).Set(float64(n))
}
