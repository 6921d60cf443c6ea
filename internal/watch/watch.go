// Package watch 订阅 tick topic，把收到的 tick 按 CSV 行打印出来
package watch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"go.uber.org/zap"
	"tickflow.com/internal/broadcast"
	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/logger"
)

// Topics symbols 为空时订阅全部（tick:*，只有 NATS 支持通配符）
func Topics(symbols []string) []string {
	if len(symbols) == 0 {
		return []string{broadcast.TickTopic("*")}
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, broadcast.TickTopic(s))
	}
	return out
}

// Run 订阅 topics 后交给 Print
func Run(ctx context.Context, b broadcast.Broker, topics []string, out io.Writer, limit int) (int, error) {
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return 0, fmt.Errorf("subscribe %v: %w", topics, err)
	}
	return Print(ctx, ch, out, limit)
}

// Print 一直读到 ctx 取消、channel 关闭或收满 limit 条（limit<=0 不限）。
// 解不开的消息记日志后跳过。返回打印的条数。
func Print(ctx context.Context, ch <-chan broadcast.Message, out io.Writer, limit int) (int, error) {
	w := csv.NewWriter(out)
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case m, ok := <-ch:
			if !ok {
				return n, nil
			}
			t, err := sink.DecodeTick(m.Payload)
			if err != nil {
				logger.Warn(ctx, "watch: bad tick payload", zap.String("topic", m.Topic), zap.Error(err))
				continue
			}
			if err := writeRow(w, t); err != nil {
				return n, err
			}
			n++
			if limit > 0 && n >= limit {
				return n, nil
			}
		}
	}
}

func writeRow(w *csv.Writer, t tick.Tick) error {
	if err := w.Write(t.Row()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
