// Package queue 生产者/消费者之间的无界交接队列。
//
// 所有状态由一把锁保护；WaitAndPop 在 "非空 || 已 Stop" 上等待，
// 每次被唤醒都重新检查条件，避免虚假唤醒和唤醒丢失。
// Stop 之后已入队的元素仍然会被逐个取出，队列空了才报告 stopped。
package queue

import "sync"

type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	head    int
	stopped bool
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 追加到队尾并唤醒一个等待者，不阻塞、不失败。
// Stop 之后不应再 Push（调用方约定，这里不检查）。
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// TryPop 非阻塞取队头；队列为空时 ok=false，与 stop 状态无关
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return item, false
	}
	return q.popLocked(), true
}

// WaitAndPop 阻塞直到有元素（即使已经 Stop 也先返回元素），
// 或者已经 Stop 且队列为空，此时 ok=false。
func (q *Queue[T]) WaitAndPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.lenLocked() == 0 && !q.stopped {
		q.cond.Wait()
	}
	if q.lenLocked() == 0 {
		return item, false
	}
	return q.popLocked(), true
}

// Stop 单向置位并唤醒所有等待者，重复调用没有额外效果
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queue[T]) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *Queue[T]) lenLocked() int { return len(q.items) - q.head }

func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero // 释放引用
	q.head++

	switch {
	case q.head == len(q.items):
		// 取空了，复用底层数组
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 > len(q.items):
		// 前半段都是空洞，搬一次
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}
