package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 控制模拟轮次之间的节奏，第一轮不等待
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer every<=0 时不限速
func NewPacer(every time.Duration) *Pacer {
	if every <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// Wait 阻塞到下一轮可以开始，ctx 取消时返回 ctx.Err()
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
