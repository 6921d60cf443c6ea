package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"tickflow.com/pkg/logger"
)

// Go 安全启动协程
func Go(fn func()) <-chan struct{} {
	return GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx 安全启动携带 context 的协程。
// 返回的 channel 在 fn 返回或 panic 被 recover 之后关闭，调用方可以拿它做 join。
func GoCtx(ctx context.Context, fn func(ctx context.Context)) <-chan struct{} {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				if logger.Log != nil {
					logger.Error(ctx, "goroutine panic recovered",
						zap.Any("panic", r),
						zap.String("stack", stack),
					)
				} else {
					fmt.Printf("goroutine panic: %v\nstack: %s\n", r, stack)
				}
			}
		}()

		fn(ctx)
	}()

	return done
}
