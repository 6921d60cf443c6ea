package sink

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"tickflow.com/internal/tick"
)

const (
	defaultStream    = "tickflow:ticks"
	defaultStreamLen = 100_000
)

type RedisConfig struct {
	Stream    string `mapstructure:"stream"`
	MaxLen    int64  `mapstructure:"max_len"`
	LastKeyNS string `mapstructure:"last_key_prefix"`
}

// Redis 实时观察：XADD 到一个限长 stream，同时 HSET 每个 symbol 的最新值
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	open   bool
}

func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Stream == "" {
		cfg.Stream = defaultStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultStreamLen
	}
	if cfg.LastKeyNS == "" {
		cfg.LastKeyNS = "tickflow:last:"
	}
	return &Redis{client: client, cfg: cfg}
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) Open(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return err
	}
	s.open = true
	return nil
}

func (s *Redis) Write(ctx context.Context, t tick.Tick) error {
	if !s.open {
		return ErrNotOpen
	}
	fields := tickFields(t)
	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: fields,
	})
	pipe.HSet(ctx, s.LastKey(t.Symbol), fields)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) LastKey(symbol string) string { return s.cfg.LastKeyNS + symbol }

// Close client 由外部关闭
func (s *Redis) Close() error {
	s.open = false
	return nil
}

func tickFields(t tick.Tick) map[string]interface{} {
	return map[string]interface{}{
		"ts":     strconv.FormatInt(t.Timestamp.UnixMilli(), 10),
		"symbol": t.Symbol,
		"price":  t.Price.String(),
		"volume": strconv.FormatInt(t.Volume, 10),
	}
}
