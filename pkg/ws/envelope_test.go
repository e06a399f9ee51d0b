package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("typing", map[string]bool{"is_typing": true})
	require.NoError(t, err)
	assert.Equal(t, "typing", env.Type)
	assert.NotEmpty(t, env.ID)
	assert.JSONEq(t, `{"is_typing":true}`, string(env.Payload))

	var out struct {
		IsTyping bool `json:"is_typing"`
	}
	require.NoError(t, env.Decode(&out))
	assert.True(t, out.IsTyping)

	_, err = NewEnvelope("bad", make(chan int))
	assert.Error(t, err)
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := Envelope{Type: "pong", ID: "1", Timestamp: 42}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","id":"1","timestamp":42}`, string(data))

	var nilPayload map[string]any
	require.NoError(t, env.Decode(&nilPayload))
	assert.Nil(t, nilPayload)

	ping := newPing(time.UnixMilli(1000))
	assert.Equal(t, TypePing, ping.Type)
	assert.Equal(t, int64(1000), ping.Timestamp)
}
