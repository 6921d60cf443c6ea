// Package app 组装根：按配置构建 sink、队列、消费者、行情源和编排器。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"tickflow.com/internal/broadcast"
	"tickflow.com/internal/consumer"
	"tickflow.com/internal/queue"
	"tickflow.com/internal/simulator"
	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
	"tickflow.com/internal/watch"
	"tickflow.com/pkg/logger"
	"tickflow.com/pkg/orm"
	"tickflow.com/pkg/ratelimit"
	"tickflow.com/pkg/safe"
	"tickflow.com/pkg/xredis"
)

type Report struct {
	simulator.Result
	Consumer consumer.Stats
}

// Run 跑一次完整模拟。返回错误只表示组装失败；sink 打开失败体现在 Report.Consumer 里。
func Run(ctx context.Context, cfg simulator.Cfg, runID string) (Report, error) {
	sources, err := cfg.Sources()
	if err != nil {
		return Report{}, err
	}
	var live broadcast.Broker
	if cfg.Live.Enabled {
		live = broadcast.NewMemBroker(0)
	}
	out, closers, err := BuildSinks(ctx, cfg, runID, live)
	if err != nil {
		return Report{}, err
	}
	defer closeAll(ctx, closers)

	if live != nil {
		stopLive, err := startLive(ctx, live, cfg)
		if err != nil {
			return Report{}, err
		}
		// 消费者退出后再停，缓冲里的行都会打印
		defer stopLive()
	}

	return RunWith(ctx, sources, out, cfg.Rounds, cfg.RoundDelay)
}

// startLive 在发布开始前订阅所有配置的 symbol；stop 关闭 broker 并等打印协程读完缓冲
func startLive(ctx context.Context, b broadcast.Broker, cfg simulator.Cfg) (stop func(), err error) {
	out := io.Writer(os.Stderr)
	var f *os.File
	if cfg.Live.Path != "" {
		if f, err = os.Create(cfg.Live.Path); err != nil {
			return nil, fmt.Errorf("live output: %w", err)
		}
		out = f
	}

	symbols := make([]string, 0, len(cfg.Symbols))
	for _, sc := range cfg.Symbols {
		symbols = append(symbols, sc.Symbol)
	}
	liveCtx := context.WithoutCancel(ctx)
	ch, err := b.Subscribe(liveCtx, watch.Topics(symbols))
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, err
	}

	done := safe.Go(func() {
		if _, err := watch.Print(liveCtx, ch, out, 0); err != nil {
			logger.Warn(ctx, "live view stopped", zap.Error(err))
		}
	})
	return func() {
		_ = b.Close()
		<-done
		if f != nil {
			_ = f.Close()
		}
	}, nil
}

// RunWith 用给定的源和 sink 跑模拟，测试直接注入假实现
func RunWith(ctx context.Context, sources []tick.Source, out sink.Sink, rounds int, roundDelay time.Duration) (Report, error) {
	q := queue.New[tick.Tick]()
	w := consumer.NewWriter(q, out)
	if err := w.Start(ctx); err != nil {
		return Report{}, err
	}

	orch := simulator.NewOrchestrator(sources, q, w, rounds, roundDelay)
	res := orch.Run(ctx)
	return Report{Result: res, Consumer: w.Stats()}, nil
}

// BuildSinks 把开启的 sink 组合成一个 Multi。
// 每个 sink 都统计指标；远端 sink 额外套熔断，并且打开失败不影响本地文件 sink。
// closers 在消费者退出后调用，释放连接。
// live 非空时加一个发布到它的 sink，供进程内实时观察
func BuildSinks(ctx context.Context, cfg simulator.Cfg, runID string, live broadcast.Broker) (sink.Sink, []io.Closer, error) {
	var (
		sinks   []sink.Sink
		closers []io.Closer
	)
	fail := func(err error) (sink.Sink, []io.Closer, error) {
		closeAll(ctx, closers)
		return nil, nil, err
	}

	cbs := ratelimit.NewManager(cfg.Breaker)
	cbs.OnStateChange(func(name string, from, to gobreaker.State) {
		logger.Warn(ctx, "sink breaker state changed",
			zap.String("sink", name), zap.String("from", from.String()), zap.String("to", to.String()))
	})
	remote := func(s sink.Sink) sink.Sink {
		return sink.Optional(sink.WithMetrics(sink.WithBreaker(s, cbs)))
	}

	sc := cfg.Sinks
	if sc.CSV.Enabled {
		sinks = append(sinks, sink.WithMetrics(sink.NewCSV(sc.CSV.Path)))
	}
	if sc.WAL.Enabled {
		sinks = append(sinks, sink.WithMetrics(sink.NewWAL(sc.WAL.Path, sc.WAL.SyncEvery)))
	}
	if sc.Influx.Enabled {
		logger.Info(ctx, "influx sink enabled", zap.Stringer("cfg", sc.Influx.InfluxConfig))
		sinks = append(sinks, remote(sink.NewInflux(sc.Influx.InfluxConfig)))
	}
	if sc.MySQL.Enabled {
		db, err := orm.NewMySQL(sc.MySQL.Config)
		if err != nil {
			return fail(fmt.Errorf("mysql sink: %w", err))
		}
		closers = append(closers, closerFunc(func() error { return orm.Close(db) }))
		sinks = append(sinks, remote(sink.NewSQL(db, runID, sc.MySQL.AutoMigrate)))
	}
	if sc.Redis.Enabled {
		rdb, err := xredis.NewRedis(ctx, sc.Redis.Conn)
		if err != nil {
			return fail(fmt.Errorf("redis sink: %w", err))
		}
		closers = append(closers, rdb)
		sinks = append(sinks, remote(sink.NewRedis(rdb, sc.Redis.RedisConfig)))
	}
	if sc.NATS.Enabled {
		nb, err := broadcast.NewNatsBroker(sc.NATS.URL, nats.Name(cfg.Name))
		if err != nil {
			return fail(fmt.Errorf("nats sink: %w", err))
		}
		closers = append(closers, nb)
		sinks = append(sinks, remote(sink.NewPublish("nats", nb)))
	}

	if live != nil {
		closers = append(closers, live)
		sinks = append(sinks, sink.Optional(sink.WithMetrics(sink.NewPublish("live", live))))
	}

	if len(sinks) == 0 {
		return fail(sink.ErrNoSinks)
	}
	return sink.NewMulti(sinks...), closers, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(ctx context.Context, closers []io.Closer) {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn(ctx, "release sink resources", zap.Error(err))
	}
}
