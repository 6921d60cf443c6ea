// tick-watch 订阅模拟器发到 NATS 的 tick，实时打印成 CSV
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"tickflow.com/internal/broadcast"
	"tickflow.com/internal/watch"
	"tickflow.com/pkg/logger"
)

func main() {
	url := flag.String("nats", nats.DefaultURL, "NATS 地址")
	symbols := flag.String("symbols", "", "逗号分隔的 symbol，空表示全部")
	limit := flag.Int("n", 0, "收满 n 条后退出，0 不限")
	level := flag.String("log-level", "warn", "日志级别")
	flag.Parse()

	logger.Init("tick-watch", *level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broadcast.NewNatsBroker(*url, nats.Name("tick-watch"))
	if err != nil {
		logger.Fatal(ctx, "connect nats", zap.String("url", *url), zap.Error(err))
	}
	defer b.Close()

	n, err := watch.Run(ctx, b, watch.Topics(splitSymbols(*symbols)), os.Stdout, *limit)
	if err != nil {
		logger.Error(ctx, "watch failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "watch finished", zap.Int("ticks", n))
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
