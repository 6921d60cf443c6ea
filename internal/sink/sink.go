// Package sink 消费者落盘/外发的目标。
//
// Sink 的生命周期由消费者协程独占：Open 一次，Write 多次，退出时保证 Close。
// 单条 Write 失败不影响后续写入。
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/logger"
)

var (
	ErrNotOpen     = errors.New("sink not open")
	ErrNoSinks     = errors.New("no sink configured")
	ErrBreakerOpen = errors.New("sink circuit breaker open")
)

type Sink interface {
	Name() string
	Open(ctx context.Context) error
	Write(ctx context.Context, t tick.Tick) error
	Close() error
}

// Multi 把一个 tick 依次写给多个 sink，仍然只有一个消费者
type Multi struct {
	sinks  []Sink
	opened []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

// Open 必需的 sink 失败就关掉已打开的并返回错误；Optional 的失败只记日志并跳过
func (m *Multi) Open(ctx context.Context) error {
	if len(m.sinks) == 0 {
		return ErrNoSinks
	}
	m.opened = m.opened[:0]
	for _, s := range m.sinks {
		if err := s.Open(ctx); err != nil {
			if _, ok := s.(*optional); ok {
				logger.Warn(ctx, "optional sink open failed, skipped", zap.String("sink", s.Name()), zap.Error(err))
				continue
			}
			closeErr := m.Close()
			return errors.Join(fmt.Errorf("open %s: %w", s.Name(), err), closeErr)
		}
		m.opened = append(m.opened, s)
	}
	if len(m.opened) == 0 {
		return ErrNoSinks
	}
	return nil
}

type optional struct {
	Sink
}

// Optional 在 Multi 里打开失败不算致命
func Optional(s Sink) Sink {
	return &optional{Sink: s}
}

// Write 每个 sink 都会尝试，错误合并返回
func (m *Multi) Write(ctx context.Context, t tick.Tick) error {
	if len(m.opened) == 0 {
		return ErrNotOpen
	}
	var errs []error
	for _, s := range m.opened {
		if err := s.Write(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 逆序关闭，错误合并返回
func (m *Multi) Close() error {
	var errs []error
	for i := len(m.opened) - 1; i >= 0; i-- {
		s := m.opened[i]
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	m.opened = m.opened[:0]
	return errors.Join(errs...)
}
