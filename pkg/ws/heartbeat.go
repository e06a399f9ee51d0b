package ws

import (
	"encoding/json"

	"go.uber.org/zap"
)

// startHeartbeatLocked 安排下一次心跳；仅在 Open、启用心跳且可见时生效
func (c *Core) startHeartbeatLocked() {
	stopTimer(&c.heartbeatTimer)
	if !c.cfg.EnableHeartbeat || !c.visible || c.state != StateOpen {
		return
	}
	gen := c.gen
	c.heartbeatTimer = c.clock.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.mu.Lock()
		if c.gen != gen || c.state != StateOpen || !c.visible {
			c.mu.Unlock()
			return
		}
		c.heartbeatTimer = nil
		c.heartbeatLocked()
		c.unlockAndEmit()
	})
}

// heartbeatLocked 上一次 ping 之后没有任何入站数据则判定连接已死，否则再发一次 ping
func (c *Core) heartbeatLocked() {
	if c.pingOutstanding {
		c.metrics.IncrementHeartbeatTimeouts(c.cfg.Endpoint)
		c.log.Warn("heartbeat timeout", zap.Duration("interval", c.cfg.HeartbeatInterval))
		c.failLocked(ErrHeartbeatTimeout)
		return
	}
	c.pingLocked()
	c.startHeartbeatLocked()
}

func (c *Core) pingLocked() {
	now := c.clock.Now()
	data, _ := json.Marshal(newPing(now))
	if err := c.conn.Write(data, now.Add(c.cfg.WriteTimeout)); err != nil {
		c.failLocked(ErrTransport.WithError(err))
		return
	}
	c.pingOutstanding = true
	c.metrics.IncrementMessagesSent(c.cfg.Endpoint, TypePing)
}
