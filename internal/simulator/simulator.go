// Package simulator 生产者：按轮生成行情，推入交接队列，结束后 stop 并等待消费者。
package simulator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"tickflow.com/internal/queue"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/logger"
	"tickflow.com/pkg/metrics"
	"tickflow.com/pkg/ratelimit"
)

// Joiner 消费者的 join 句柄，消费者已经退出时 Wait 直接返回
type Joiner interface {
	Wait()
}

// ObserveFunc 每个 tick 入队前调用一次，用于实时观察
type ObserveFunc func(ctx context.Context, round int, t tick.Tick)

type Result struct {
	Rounds      int  // 完整跑完的轮数
	Pushed      int  // 入队的 tick 数
	Interrupted bool // ctx 取消，提前结束
}

type Orchestrator struct {
	sources  []tick.Source
	queue    *queue.Queue[tick.Tick]
	consumer Joiner
	rounds   int
	pacer    *ratelimit.Pacer
	now      func() time.Time
	observe  ObserveFunc
	tracer   trace.Tracer
}

type Option func(*Orchestrator)

// WithClock 测试里固定时间
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithObserver(fn ObserveFunc) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

func NewOrchestrator(sources []tick.Source, q *queue.Queue[tick.Tick], consumer Joiner,
	rounds int, roundDelay time.Duration, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:  sources,
		queue:    q,
		consumer: consumer,
		rounds:   rounds,
		pacer:    ratelimit.NewPacer(roundDelay),
		now:      time.Now,
		observe:  LogObserver,
		tracer:   otel.Tracer("tickflow.com/internal/simulator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LogObserver 每个 tick 打一行日志
func LogObserver(ctx context.Context, round int, t tick.Tick) {
	logger.Info(ctx, "tick",
		zap.Int("round", round),
		zap.String("ts", t.FormattedTimestamp()),
		zap.String("symbol", t.Symbol),
		zap.String("price", t.PriceString()),
		zap.Int64("volume", t.Volume))
}

// Run 跑完所有轮次（或 ctx 取消）后 Stop 一次并等待消费者退出。
// 无论怎样结束，返回时消费者都已退出。
func (o *Orchestrator) Run(ctx context.Context) Result {
	var res Result
	logger.Info(ctx, "simulation started",
		zap.Int("rounds", o.rounds), zap.Int("symbols", len(o.sources)))

	for round := 1; round <= o.rounds; round++ {
		// 第一轮不等
		if err := o.pacer.Wait(ctx); err != nil {
			res.Interrupted = true
			logger.Warn(ctx, "simulation interrupted, stopping early",
				zap.Int("completed_rounds", res.Rounds), zap.Error(err))
			break
		}
		res.Pushed += o.runRound(ctx, round)
		res.Rounds++
	}

	o.queue.Stop()
	logger.Info(ctx, "simulation finished producing, waiting for consumer",
		zap.Int("pushed", res.Pushed), zap.Int("pending", o.queue.Len()))
	o.consumer.Wait()
	logger.Info(ctx, "simulation complete", zap.Int("rounds", res.Rounds), zap.Int("pushed", res.Pushed))
	return res
}

func (o *Orchestrator) runRound(ctx context.Context, round int) int {
	ctx, span := o.tracer.Start(ctx, "simulation.round", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("symbols", len(o.sources)),
	))
	defer span.End()

	for _, src := range o.sources {
		t := src.Generate(o.now())
		metrics.TicksGeneratedTotal.WithLabelValues(t.Symbol).Inc()
		if o.observe != nil {
			o.observe(ctx, round, t)
		}
		o.queue.Push(t)
		metrics.QueuePushedTotal.Inc()
		metrics.QueueDepth.Set(float64(o.queue.Len()))
	}
	return len(o.sources)
}
