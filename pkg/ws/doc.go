// Package ws 提供客户端实时连接核心：单条 WebSocket 连接的建立、保活、重连与消息收发。
//
// # 特性
//
//   - 指数退避重连，带 ±20% 抖动与上限
//   - 心跳保活，两个周期内无任何入站数据即判定连接失效
//   - 有界发送队列，离线期间消息按序积压，满时丢弃最旧的一条
//   - 类型化事件订阅，取消订阅可重复调用
//   - 并发 Connect 合并为一次拨号，可选防抖窗口
//   - 感知宿主可见性与网络在线状态
//
// # 基本用法
//
//	core, err := ws.New(
//	    ws.WithEndpoint("wss://api.example.com/ws/chat"),
//	    ws.WithHeartbeat(30*time.Second),
//	    ws.WithReconnect(time.Second, 5),
//	    ws.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	defer core.Disconnect()
//
//	sub := core.On(ws.EventMessage, func(ev ws.Event) {
//	    env := ev.(ws.MessageEvent).Envelope
//	    log.Info("message", zap.String("type", env.Type))
//	})
//	defer sub.Dispose()
//
//	if err := core.Connect(ctx, token, url.Values{"bot_id": {botID}}); err != nil {
//	    return err
//	}
//	_ = core.SendJSON("chat_message", payload)
//
// # 状态
//
// 连接在 Idle、Connecting、Open、Reconnecting、Closed、Failed 之间迁移。
// Failed 表示鉴权失败或重连次数耗尽，需要调用方再次 Connect。
// Disconnect 进入 Closed，清空发送队列并停止全部定时器。
//
// # 测试
//
// wstest 子包提供 FakeClock 与 FakeTransport，可在不依赖真实网络与时间的前提下驱动全部状态迁移。
package ws
