// Package consumer 消费者协程：从交接队列取 tick，写到 sink。
//
// 终止只有一个入口：队列 Stop 且已取空。单条写失败记日志后继续；
// sink 打开失败直接退出，不进入循环，队列照样可以 Push/Stop。
package consumer

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"tickflow.com/internal/queue"
	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/logger"
	"tickflow.com/pkg/metrics"
	"tickflow.com/pkg/safe"
)

var ErrAlreadyStarted = errors.New("consumer already started")

type State int32

const (
	StateWaiting State = iota // 等第一个 tick
	StateRunning
	StateStopped // 已取空并收到 stop
	StateFailed  // 打开失败或 panic
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Stats struct {
	State   State
	Written uint64
	Failed  uint64
	OpenErr error
}

type Writer struct {
	queue  *queue.Queue[tick.Tick]
	sink   sink.Sink
	tracer trace.Tracer

	started atomic.Bool
	done    chan struct{}
	state   atomic.Int32
	written atomic.Uint64
	failed  atomic.Uint64
	openErr atomic.Pointer[error]
}

func NewWriter(q *queue.Queue[tick.Tick], s sink.Sink) *Writer {
	return &Writer{
		queue:  q,
		sink:   s,
		tracer: otel.Tracer("tickflow.com/internal/consumer"),
		done:   make(chan struct{}),
	}
}

// Start 在独立协程里跑消费循环。
// 写入用的 ctx 去掉了取消信号：进程收到中断时仍然要把已入队的 tick 写完。
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx := context.WithoutCancel(ctx)
	exited := safe.GoCtx(runCtx, w.run)
	go func() {
		<-exited
		close(w.done)
	}()
	return nil
}

// Wait 等消费者协程退出；没 Start 过直接返回
func (w *Writer) Wait() {
	if !w.started.Load() {
		return
	}
	<-w.done
}

// Done 协程退出后关闭
func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) Stats() Stats {
	st := Stats{
		State:   State(w.state.Load()),
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
	}
	if p := w.openErr.Load(); p != nil {
		st.OpenErr = *p
	}
	return st
}

func (w *Writer) run(ctx context.Context) {
	w.setState(StateWaiting)
	// panic 时 state 还没走到 stopped
	defer func() {
		if State(w.state.Load()) != StateStopped {
			w.setState(StateFailed)
		}
	}()

	if err := w.sink.Open(ctx); err != nil {
		w.openErr.Store(&err)
		logger.Error(ctx, "consumer: open sink failed, exiting without draining",
			zap.String("sink", w.sink.Name()), zap.Error(err))
		return
	}
	defer func() {
		if err := w.sink.Close(); err != nil {
			logger.Error(ctx, "consumer: close sink failed", zap.String("sink", w.sink.Name()), zap.Error(err))
			return
		}
		logger.Info(ctx, "consumer: sink closed", zap.String("sink", w.sink.Name()))
	}()

	for {
		t, ok := w.queue.WaitAndPop()
		if !ok {
			break
		}
		metrics.QueuePoppedTotal.Inc()
		metrics.QueueDepth.Set(float64(w.queue.Len()))
		w.setState(StateRunning)
		w.write(ctx, t)
	}

	w.setState(StateStopped)
	logger.Info(ctx, "consumer: drained and stopped",
		zap.Uint64("written", w.written.Load()), zap.Uint64("failed", w.failed.Load()))
}

func (w *Writer) write(ctx context.Context, t tick.Tick) {
	ctx, span := w.tracer.Start(ctx, "sink.write", trace.WithAttributes(
		attribute.String("sink", w.sink.Name()),
		attribute.String("symbol", t.Symbol),
	))
	defer span.End()

	if err := w.sink.Write(ctx, t); err != nil {
		w.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		logger.Warn(ctx, "consumer: write failed, continuing",
			zap.String("sink", w.sink.Name()),
			zap.String("symbol", t.Symbol),
			zap.Time("ts", t.Timestamp),
			zap.Error(err))
		return
	}
	w.written.Add(1)
}

func (w *Writer) setState(s State) {
	w.state.Store(int32(s))
	metrics.ConsumerState.Set(float64(s))
}
