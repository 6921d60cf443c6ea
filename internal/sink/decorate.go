package sink

import (
	"context"
	"fmt"
	"time"

	"tickflow.com/internal/tick"
	"tickflow.com/pkg/metrics"
	"tickflow.com/pkg/ratelimit"
)

// Breaker 远端 sink 熔断：下游连续失败后直接快速失败，不拖慢消费者
type Breaker struct {
	Sink
	cbs *ratelimit.Manager
}

func WithBreaker(s Sink, cbs *ratelimit.Manager) *Breaker {
	return &Breaker{Sink: s, cbs: cbs}
}

func (b *Breaker) Write(ctx context.Context, t tick.Tick) error {
	err := b.cbs.Do(b.Name(), func() error { return b.Sink.Write(ctx, t) })
	if ratelimit.IsOpen(err) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	return err
}

// Observed 每个 sink 的写入次数和耗时
type Observed struct {
	Sink
}

func WithMetrics(s Sink) *Observed {
	return &Observed{Sink: s}
}

func (o *Observed) Write(ctx context.Context, t tick.Tick) error {
	start := time.Now()
	err := o.Sink.Write(ctx, t)
	metrics.SinkWriteDuration.WithLabelValues(o.Name()).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SinkWritesTotal.WithLabelValues(o.Name(), status).Inc()
	return err
}
