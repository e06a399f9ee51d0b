package ws

// OutboundQueue 有界 FIFO 发送队列（环形缓冲）
// 非并发安全，由 Core 的锁保护
type OutboundQueue struct {
	buf  []Envelope
	head int
	size int
}

// NewOutboundQueue 创建指定容量的队列
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &OutboundQueue{buf: make([]Envelope, capacity)}
}

// Push 入队；队满时丢弃最旧的消息并返回它
func (q *OutboundQueue) Push(env Envelope) (dropped Envelope, overflow bool) {
	if q.size == len(q.buf) {
		dropped = q.buf[q.head]
		q.buf[q.head] = env
		q.head = (q.head + 1) % len(q.buf)
		return dropped, true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = env
	q.size++
	return Envelope{}, false
}

// Peek 查看队首
func (q *OutboundQueue) Peek() (Envelope, bool) {
	if q.size == 0 {
		return Envelope{}, false
	}
	return q.buf[q.head], true
}

// Pop 出队
func (q *OutboundQueue) Pop() (Envelope, bool) {
	env, ok := q.Peek()
	if !ok {
		return env, false
	}
	q.buf[q.head] = Envelope{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return env, true
}

// Len 当前长度
func (q *OutboundQueue) Len() int { return q.size }

// Cap 容量
func (q *OutboundQueue) Cap() int { return len(q.buf) }

// Clear 清空队列，返回被清除的数量
func (q *OutboundQueue) Clear() int {
	n := q.size
	for i := range q.buf {
		q.buf[i] = Envelope{}
	}
	q.head, q.size = 0, 0
	return n
}
