package simulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/orm"
	"tickflow.com/pkg/ratelimit"
	"tickflow.com/pkg/xredis"
)

const (
	DefaultRounds     = 50
	DefaultRoundDelay = 100 * time.Millisecond
	DefaultCSVPath    = "multi_symbol_threaded_market_data_output2.csv"
)

var (
	ErrNoSymbols       = errors.New("no symbol configured")
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrBadSymbol       = errors.New("bad symbol config")
)

type Cfg struct {
	Name       string        `yaml:"name" mapstructure:"name"`
	LogLevel   string        `yaml:"log_level" mapstructure:"log_level"`
	LogFile    string        `yaml:"log_file" mapstructure:"log_file"`
	Rounds     int           `yaml:"rounds" mapstructure:"rounds"`
	RoundDelay time.Duration `yaml:"round_delay" mapstructure:"round_delay"`
	Seed       uint64        `yaml:"seed" mapstructure:"seed"` // 0 表示按时间取种子
	Symbols    []SymbolCfg   `yaml:"symbols" mapstructure:"symbols"`

	Live    Live           `yaml:"live" mapstructure:"live"`
	Metrics Metrics        `yaml:"metrics" mapstructure:"metrics"`
	Trace   Trace          `yaml:"trace" mapstructure:"trace"`
	Sinks   Sinks          `yaml:"sinks" mapstructure:"sinks"`
	Breaker ratelimit.Rule `yaml:"breaker" mapstructure:"breaker"`
}

// SymbolCfg price 用字符串，避免浮点误差
type SymbolCfg struct {
	Symbol string `yaml:"symbol" mapstructure:"symbol"`
	Price  string `yaml:"price" mapstructure:"price"`
	Volume int64  `yaml:"volume" mapstructure:"volume"`
}

// Live 进程内实时观察：tick 经内存 broker 发布，订阅方打印成 CSV 行
type Live struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"` // 空则打到 stderr
}

type Metrics struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type Trace struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type Sinks struct {
	CSV    CSVSink    `yaml:"csv" mapstructure:"csv"`
	WAL    WALSink    `yaml:"wal" mapstructure:"wal"`
	Influx InfluxSink `yaml:"influx" mapstructure:"influx"`
	MySQL  MySQLSink  `yaml:"mysql" mapstructure:"mysql"`
	Redis  RedisSink  `yaml:"redis" mapstructure:"redis"`
	NATS   NATSSink   `yaml:"nats" mapstructure:"nats"`
}

type CSVSink struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type WALSink struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Path      string `yaml:"path" mapstructure:"path"`
	SyncEvery int    `yaml:"sync_every" mapstructure:"sync_every"`
}

type InfluxSink struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	sink.InfluxConfig `yaml:",inline" mapstructure:",squash"`
}

type MySQLSink struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	AutoMigrate bool `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	orm.Config  `yaml:",inline" mapstructure:",squash"`
}

type RedisSink struct {
	Enabled          bool             `yaml:"enabled" mapstructure:"enabled"`
	Conn             xredis.Config    `yaml:"conn" mapstructure:"conn"`
	sink.RedisConfig `yaml:",inline" mapstructure:",squash"`
}

type NATSSink struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// DefaultSymbols 五个默认标的及初始价格/成交量
func DefaultSymbols() []SymbolCfg {
	return []SymbolCfg{
		{Symbol: "GOOG", Price: "150.00", Volume: 1000},
		{Symbol: "AAPL", Price: "175.50", Volume: 1200},
		{Symbol: "MSFT", Price: "420.10", Volume: 800},
		{Symbol: "AMZN", Price: "180.75", Volume: 1500},
		{Symbol: "TSLA", Price: "200.00", Volume: 900},
	}
}

// WithDefaults 补全缺省值；没有开任何 sink 时打开 CSV
func (c Cfg) WithDefaults() Cfg {
	if c.Name == "" {
		c.Name = "tick-simulator"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Rounds == 0 {
		c.Rounds = DefaultRounds
	}
	if c.RoundDelay == 0 {
		c.RoundDelay = DefaultRoundDelay
	}
	if len(c.Symbols) == 0 {
		c.Symbols = DefaultSymbols()
	}
	s := &c.Sinks
	if !s.CSV.Enabled && !s.WAL.Enabled && !s.Influx.Enabled && !s.MySQL.Enabled && !s.Redis.Enabled && !s.NATS.Enabled {
		s.CSV.Enabled = true
	}
	if s.CSV.Path == "" {
		s.CSV.Path = DefaultCSVPath
	}
	if s.WAL.Path == "" {
		s.WAL.Path = "ticks.wal"
	}
	return c
}

func (c Cfg) Validate() error {
	if c.Rounds < 0 {
		return fmt.Errorf("rounds must be >= 0, got %d", c.Rounds)
	}
	if c.RoundDelay < 0 {
		return fmt.Errorf("round_delay must be >= 0, got %s", c.RoundDelay)
	}
	if len(c.Symbols) == 0 {
		return ErrNoSymbols
	}
	seen := make(map[string]struct{}, len(c.Symbols))
	for _, sc := range c.Symbols {
		if _, err := sc.parse(); err != nil {
			return err
		}
		if _, dup := seen[sc.Symbol]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, sc.Symbol)
		}
		seen[sc.Symbol] = struct{}{}
	}
	if c.Sinks.Influx.Enabled && (c.Sinks.Influx.URL == "" || c.Sinks.Influx.Bucket == "") {
		return errors.New("sinks.influx: url and bucket required")
	}
	if c.Sinks.MySQL.Enabled && c.Sinks.MySQL.DSN == "" {
		return errors.New("sinks.mysql: dsn required")
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Conn.Addr == "" {
		return errors.New("sinks.redis: conn.addr required")
	}
	if c.Sinks.NATS.Enabled && c.Sinks.NATS.URL == "" {
		return errors.New("sinks.nats: url required")
	}
	return nil
}

func (sc SymbolCfg) parse() (decimal.Decimal, error) {
	if sc.Symbol == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty symbol", ErrBadSymbol)
	}
	p, err := decimal.NewFromString(sc.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s price %q: %v", ErrBadSymbol, sc.Symbol, sc.Price, err)
	}
	if !p.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s price must be > 0", ErrBadSymbol, sc.Symbol)
	}
	if sc.Volume < 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: %s volume must be >= 1", ErrBadSymbol, sc.Symbol)
	}
	return p, nil
}

// Sources 每个 symbol 一个随机游走源，种子依次 +1
func (c Cfg) Sources() ([]tick.Source, error) {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	out := make([]tick.Source, 0, len(c.Symbols))
	for i, sc := range c.Symbols {
		p, err := sc.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, tick.NewRandomWalk(sc.Symbol, p, sc.Volume, seed+uint64(i)))
	}
	return out, nil
}
