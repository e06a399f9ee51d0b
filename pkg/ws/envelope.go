package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// 心跳消息类型
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Envelope 线上传输的消息信封，收发双向通用
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // 毫秒
}

// NewEnvelope 创建出站信封，ID 由客户端生成，便于后续 ack 关联
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{
		Type:      typ,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

// Decode 将 Payload 解析到 v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

func newPing(now time.Time) Envelope {
	return Envelope{Type: TypePing, ID: uuid.NewString(), Timestamp: now.UnixMilli()}
}
