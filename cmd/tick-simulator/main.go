package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"tickflow.com/internal/app"
	"tickflow.com/internal/simulator"
	"tickflow.com/pkg/config"
	"tickflow.com/pkg/logger"
	"tickflow.com/pkg/metrics"
	"tickflow.com/pkg/trace"
)

const serviceName = "tick-simulator"

// 热更新只关心日志级别，单独解码，不碰正在使用的 cfg
type liveCfg struct {
	LogLevel string `mapstructure:"log_level"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 返回退出码：0 正常，1 启动/组装失败，2 sink 打开失败导致没有落盘
func run(args []string) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "配置文件路径，默认 config/tick-simulator.yaml")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	// ========= 0) 全局上下文 & 优雅退出 =========
	// 收到 SIGINT/SIGTERM 只停止生产新的轮次，已入队的 tick 仍然写完
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========= 1) 配置 =========
	var cfg simulator.Cfg
	v, err := config.Load(serviceName, *cfgPath, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	// ========= 2) 日志 & run id =========
	logger.InitWithFile(cfg.Name, cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	var live liveCfg
	config.Watch(v, &live, func(name string, err error) {
		if err != nil {
			logger.Warn(ctx, "config reload failed", zap.String("file", name), zap.Error(err))
			return
		}
		if live.LogLevel != "" {
			logger.SetLevel(live.LogLevel)
			logger.Info(ctx, "log level reloaded", zap.String("level", live.LogLevel))
		}
	})

	// ========= 3) 链路追踪 =========
	if cfg.Trace.Enabled {
		shutdown, err := trace.InitTrace(ctx, cfg.Name, cfg.Trace.Endpoint)
		if err != nil {
			logger.Error(ctx, "init trace", zap.Error(err))
			return 1
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "trace shutdown", zap.Error(err))
			}
		}()
	}

	// ========= 4) 运行 =========
	logger.Info(ctx, "=== multi-symbol market data simulation starting ===",
		zap.Int("rounds", cfg.Rounds), zap.Duration("round_delay", cfg.RoundDelay), zap.Int("symbols", len(cfg.Symbols)))

	// metrics server 出错只记日志，不影响模拟；模拟结束后关掉它
	var g errgroup.Group
	srvCtx, stopSrv := context.WithCancel(ctx)
	g.Go(func() error {
		if err := metrics.Serve(srvCtx, cfg.Metrics.Addr); err != nil {
			logger.Warn(ctx, "metrics server stopped", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
		}
		return nil
	})
	var rep app.Report
	g.Go(func() error {
		defer stopSrv()
		var err error
		rep, err = app.Run(ctx, cfg, runID)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error(ctx, "simulation failed", zap.Error(err))
		return 1
	}

	logger.Info(ctx, "=== simulation finished ===",
		zap.Int("rounds", rep.Rounds),
		zap.Int("pushed", rep.Pushed),
		zap.Bool("interrupted", rep.Interrupted),
		zap.Stringer("consumer_state", rep.Consumer.State),
		zap.Uint64("written", rep.Consumer.Written),
		zap.Uint64("failed", rep.Consumer.Failed))
	if cfg.Sinks.CSV.Enabled {
		logger.Info(ctx, "csv output", zap.String("path", cfg.Sinks.CSV.Path))
	}
	if rep.Consumer.OpenErr != nil {
		return 2
	}
	return 0
}
