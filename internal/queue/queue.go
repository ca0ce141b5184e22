// Package queue 实现一个无界阻塞 FIFO 队列。
// 生产端永不阻塞，消费端在队列为空时阻塞等待。
package queue

import (
	"sync"

	"github.com/oconnor0/tutkain/pkg/metrics"
	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// Queue 是一个并发安全的无界 FIFO 队列。
//
// 说明：
//   - Put 永不阻塞，队列容量按需增长；
//   - Get 在队列为空时阻塞，直到有新元素入队或队列被关闭；
//   - Close 之后 Put 返回错误，Get 会先排空剩余元素再返回关闭标记。
type Queue[T any] struct {
	mu     sync.Mutex
	notify *sync.Cond

	items  []T
	closed bool

	// name 用于指标上报，区分不同用途的队列。
	name string
}

// New 创建一个无界 FIFO 队列。name 用于指标标签。
func New[T any](name string) *Queue[T] {
	q := &Queue[T]{
		name: name,
	}
	q.notify = sync.NewCond(&q.mu)
	return q
}

// Put 将元素放入队尾。
// 队列已关闭时返回错误，元素不会入队。
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return merr.WrapErrQueueClosed(q.name)
	}

	q.items = append(q.items, item)
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
	metrics.QueueEnqueued.WithLabelValues(q.name).Inc()
	q.notify.Signal()
	return nil
}

// Get 取出队首元素，队列为空时阻塞等待。
// 第二个返回值为 false 表示队列已关闭且已排空。
func (q *Queue[T]) Get() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notify.Wait()
	}

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
	return item, true
}

// Len 返回当前队列中的元素数量。
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close 关闭队列并唤醒所有等待的消费者。
// 已入队但尚未消费的元素仍然可以被 Get 取出。
// 重复调用是安全的。
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notify.Broadcast()
}

// Drain 关闭队列并丢弃所有未消费的元素。
func (q *Queue[T]) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
	}
	if n := len(q.items); n > 0 {
		metrics.QueueDropped.WithLabelValues(q.name).Add(float64(n))
		q.items = nil
		metrics.QueueDepth.WithLabelValues(q.name).Set(0)
	}
	q.notify.Broadcast()
}
