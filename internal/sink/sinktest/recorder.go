// Package sinktest 测试用的内存 sink
package sinktest

import (
	"context"
	"errors"
	"sync"

	"tickflow.com/internal/tick"
)

var ErrInjected = errors.New("injected failure")

// Recorder 记录所有 Write 调用；可以让指定序号的写入失败或 panic
type Recorder struct {
	mu sync.Mutex

	// OpenErr 非空时 Open 返回它
	OpenErr error
	// FailOn 第 n 次（从 1 开始）Write 返回 ErrInjected
	FailOn map[int]bool
	// PanicOn 第 n 次 Write panic
	PanicOn int
	// Block 非空时每次 Write 先等它可读
	Block <-chan struct{}

	opened, closed int
	attempts       int
	written        []tick.Tick
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.OpenErr != nil {
		return r.OpenErr
	}
	r.opened++
	return nil
}

func (r *Recorder) Write(ctx context.Context, t tick.Tick) error {
	if r.Block != nil {
		<-r.Block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.PanicOn == r.attempts {
		panic("recorder panic")
	}
	if r.FailOn[r.attempts] {
		return ErrInjected
	}
	r.written = append(r.written, t)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

// Attempts Write 被调用的次数（含失败）
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Written 成功写入的 tick
func (r *Recorder) Written() []tick.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tick.Tick(nil), r.written...)
}

func (r *Recorder) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
