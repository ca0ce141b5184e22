package nrepl

import (
	"sync"
	"time"

	"github.com/oconnor0/tutkain/pkg/log"
	"github.com/oconnor0/tutkain/pkg/metrics"
)

// HandlerFunc 处理单个操作的响应。
// 在接收协程上同步调用，不允许长时间阻塞，否则会拖慢同一连接上
// 所有后续响应的分发。
type HandlerFunc func(Response)

// sender 是 Session 对所属 Client 的最小依赖。
// 只暴露入队和输出能力，不暴露连接本身。
type sender interface {
	// enqueue 将已盖戳的操作放入发送队列。
	enqueue(op Operation) error
	// output 将响应放入通用接收队列。
	output(resp Response) error
	// Halt 发起连接关闭。
	Halt()
}

// Session 表示共享连接上的一个逻辑会话。
//
// 说明：
//   - 操作 id 由会话内的单调递增计数器分配，连接存续期内不复用；
//   - 处理器表和错误标记表均为会话私有，与 id 计数器共用一把锁；
//   - 对 Client 仅持有 sender 能力，不持有连接。
type Session struct {
	id     string
	client sender

	mu        sync.Mutex
	opCount   int64
	handlers  map[int64]HandlerFunc
	denounced map[int64]Response
	inflight  map[int64]opStart
}

// opStart 记录一个在途操作的动词和发出时刻，用于耗时指标。
type opStart struct {
	op string
	at time.Time
}

func newSession(id string, client sender) *Session {
	return &Session{
		id:        id,
		client:    client,
		handlers:  make(map[int64]HandlerFunc),
		denounced: make(map[int64]Response),
		inflight:  make(map[int64]opStart),
	}
}

// ID 返回远端分配的会话 id。
func (s *Session) ID() string {
	return s.id
}

// stamp 为操作盖戳：会话 id、新分配的操作 id 和两个固定协议标志。
// 返回分配的操作 id。
func (s *Session) stamp(op Operation, handler HandlerFunc) int64 {
	s.mu.Lock()
	s.opCount++
	id := s.opCount
	if handler != nil {
		s.handlers[id] = handler
	}
	s.inflight[id] = opStart{op: op.Op(), at: time.Now()}
	s.mu.Unlock()

	op["session"] = s.id
	op["id"] = id
	op["nrepl.middleware.caught/print?"] = "true"
	op["nrepl.middleware.print/stream?"] = "true"
	return id
}

// Send 在当前会话上发送一个操作。
//
// 参数：
//   - op: 待发送的操作，至少携带 "op" 字段；
//   - handler: 响应处理器。为 nil 时响应路由到 Client 的通用接收队列。
//
// 行为：
//   - 为操作分配严格递增的会话内 id 并注册 handler；
//   - 操作按入队顺序写入连接（FIFO）；
//   - 入队失败时回收已注册的 handler，不留下无主条目。
func (s *Session) Send(op Operation, handler HandlerFunc) error {
	id := s.stamp(op, handler)
	if err := s.client.enqueue(op); err != nil {
		s.mu.Lock()
		delete(s.handlers, id)
		delete(s.inflight, id)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Output 将一个值直接放入 Client 的通用接收队列。
func (s *Session) Output(resp Response) error {
	return s.client.output(resp)
}

// dispatch 在接收协程上分发一条属于当前会话的响应。
//
// 行为：
//   - 按响应 id 查找已注册的 handler，找不到时退回到通用接收队列；
//   - 响应 status 包含 "done" 时，移除该 id 的 handler 和错误标记。
//     这是操作生命周期的终态，迟到或重复的 done 是无害的空操作。
func (s *Session) dispatch(resp Response) {
	id, ok := resp.ID()

	var handler HandlerFunc
	if ok {
		s.mu.Lock()
		handler = s.handlers[id]
		s.mu.Unlock()
	}

	if handler != nil {
		handler(resp)
	} else if err := s.client.output(resp); err != nil {
		log.Warn("session: drop response, output queue closed",
			log.FieldSession(s.id))
	}

	if ok && resp.HasStatus(StatusDone) {
		s.mu.Lock()
		delete(s.handlers, id)
		delete(s.denounced, id)
		start, started := s.inflight[id]
		delete(s.inflight, id)
		s.mu.Unlock()

		if started {
			metrics.OpDuration.WithLabelValues(start.op).
				Observe(float64(time.Since(start.at).Milliseconds()))
		}
	}
}

// Denounce 标记响应对应的操作 id 已经产生过错误。
// 纯本地记账，不产生任何网络交互。
func (s *Session) Denounce(resp Response) {
	id, ok := resp.ID()
	if !ok {
		return
	}
	s.mu.Lock()
	s.denounced[id] = resp
	s.mu.Unlock()
}

// IsDenounced 判断响应对应的操作 id 是否已被标记出错。
func (s *Session) IsDenounced(resp Response) bool {
	id, ok := resp.ID()
	if !ok {
		return false
	}
	s.mu.Lock()
	_, found := s.denounced[id]
	s.mu.Unlock()
	return found
}

// Terminate 终止会话所在的连接。
func (s *Session) Terminate() {
	s.client.Halt()
}

// pendingHandlers 返回当前注册的 handler 数量，仅用于测试。
func (s *Session) pendingHandlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
