package sink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/logger"
	"tickflow.com/pkg/metrics"
	"tickflow.com/pkg/safe"
)

type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`

	// Blocking 为 true 时每条同步写，错误直接返回给消费者；
	// 否则走异步批量写，错误只能从 Errors() 里拿到，记日志
	Blocking      bool          `mapstructure:"blocking"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	UseGzip       bool          `mapstructure:"use_gzip"`
}

func (cfg InfluxConfig) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s blocking=%v batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.Blocking, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}

// Influx measurement=tick，tag=symbol，field=price/volume
type Influx struct {
	cfg InfluxConfig

	client   influxdb2.Client
	async    api.WriteAPI
	blocking api.WriteAPIBlocking
	errDone  <-chan struct{}
}

func NewInflux(cfg InfluxConfig) *Influx {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	return &Influx{cfg: cfg}
}

func (s *Influx) Name() string { return "influx" }

func (s *Influx) Open(ctx context.Context) error {
	opt := influxdb2.DefaultOptions().
		SetBatchSize(s.cfg.BatchSize).
		SetFlushInterval(uint(s.cfg.FlushInterval.Milliseconds())).
		SetUseGZip(s.cfg.UseGzip)
	s.client = influxdb2.NewClientWithOptions(s.cfg.URL, s.cfg.Token, opt)

	if s.cfg.Blocking {
		s.blocking = s.client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
		return nil
	}

	s.async = s.client.WriteAPI(s.cfg.Org, s.cfg.Bucket)
	// 必须消费 Errors()，否则异步写入错误可能导致阻塞
	errs := s.async.Errors()
	s.errDone = safe.Go(func() {
		for err := range errs {
			metrics.SinkWritesTotal.WithLabelValues(s.Name(), "async_error").Inc()
			logger.Error(ctx, "influx async write failed", zap.Error(err))
		}
	})
	return nil
}

func (s *Influx) Write(ctx context.Context, t tick.Tick) error {
	switch {
	case s.blocking != nil:
		return s.blocking.WritePoint(ctx, point(t))
	case s.async != nil:
		s.async.WritePoint(point(t))
		return nil
	default:
		return ErrNotOpen
	}
}

// Close 会 flush 异步缓冲
func (s *Influx) Close() error {
	if s.client == nil {
		return nil
	}
	if s.async != nil {
		s.async.Flush()
	}
	s.client.Close()
	if s.errDone != nil {
		// client.Close 之后 Errors() 会被关闭
		select {
		case <-s.errDone:
		case <-time.After(time.Second):
		}
	}
	s.client, s.async, s.blocking, s.errDone = nil, nil, nil, nil
	return nil
}

func point(t tick.Tick) *write.Point {
	return write.NewPoint("tick",
		map[string]string{"symbol": t.Symbol},
		map[string]interface{}{
			"price":  t.Price.InexactFloat64(),
			"volume": t.Volume,
		},
		t.Timestamp,
	)
}
