package simulator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tickflow.com/internal/consumer"
	"tickflow.com/internal/queue"
	"tickflow.com/internal/sink/sinktest"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/config"
)

const runTimeout = 3 * time.Second

// seqSource 每次 Generate 成交量 +1，方便断言顺序
type seqSource struct {
	symbol string
	n      int64
}

func (s *seqSource) Symbol() string { return s.symbol }

func (s *seqSource) Generate(now time.Time) tick.Tick {
	s.n++
	return tick.Tick{Timestamp: now, Symbol: s.symbol, Price: decimal.NewFromInt(10), Volume: s.n}
}

func fixedClock() time.Time { return time.UnixMilli(1_700_000_000_000) }

type harness struct {
	q   *queue.Queue[tick.Tick]
	rec *sinktest.Recorder
	w   *consumer.Writer
}

func newHarness(t *testing.T, rec *sinktest.Recorder) *harness {
	t.Helper()
	q := queue.New[tick.Tick]()
	w := consumer.NewWriter(q, rec)
	require.NoError(t, w.Start(context.Background()))
	return &harness{q: q, rec: rec, w: w}
}

func runBounded(t *testing.T, ctx context.Context, o *Orchestrator) Result {
	t.Helper()
	ch := make(chan Result, 1)
	go func() { ch <- o.Run(ctx) }()
	select {
	case r := <-ch:
		return r
	case <-time.After(runTimeout):
		t.Fatal("orchestrator did not finish in time")
		return Result{}
	}
}

func twoSources() []tick.Source {
	return []tick.Source{&seqSource{symbol: "A"}, &seqSource{symbol: "B"}}
}

func TestRun_EndToEndOrder(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{})
	var observed []string
	o := NewOrchestrator(twoSources(), h.q, h.w, 3, 0,
		WithClock(fixedClock),
		WithObserver(func(_ context.Context, _ int, tk tick.Tick) { observed = append(observed, tk.Symbol) }))

	res := runBounded(t, context.Background(), o)
	assert.Equal(t, Result{Rounds: 3, Pushed: 6}, res)

	got := h.rec.Written()
	require.Len(t, got, 6)
	want := []struct {
		sym string
		vol int64
	}{{"A", 1}, {"B", 1}, {"A", 2}, {"B", 2}, {"A", 3}, {"B", 3}}
	for i, w := range want {
		assert.Equal(t, w.sym, got[i].Symbol, "index %d", i)
		assert.Equal(t, w.vol, got[i].Volume, "index %d", i)
	}
	assert.Equal(t, []string{"A", "B", "A", "B", "A", "B"}, observed)
	assert.Equal(t, consumer.StateStopped, h.w.Stats().State)
	assert.True(t, h.q.Stopped())
	assert.Equal(t, 1, h.rec.Closed())
}

func TestRun_FailureIsolation(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{FailOn: map[int]bool{3: true}})
	o := NewOrchestrator(twoSources(), h.q, h.w, 3, 0, WithClock(fixedClock), WithObserver(nil))

	runBounded(t, context.Background(), o)

	assert.Equal(t, 6, h.rec.Attempts())
	assert.Len(t, h.rec.Written(), 5)
	st := h.w.Stats()
	assert.Equal(t, consumer.StateStopped, st.State)
	assert.Equal(t, uint64(1), st.Failed)
}

func TestRun_OpenFailureDoesNotDeadlock(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{OpenErr: errors.New("permission denied")})
	o := NewOrchestrator(twoSources(), h.q, h.w, 3, 0, WithObserver(nil))

	res := runBounded(t, context.Background(), o)
	assert.Equal(t, 6, res.Pushed)
	assert.Equal(t, consumer.StateFailed, h.w.Stats().State)
	assert.Equal(t, 0, h.rec.Attempts())
}

func TestRun_SinkPanicDoesNotDeadlock(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{PanicOn: 1})
	o := NewOrchestrator(twoSources(), h.q, h.w, 3, 0, WithObserver(nil))

	runBounded(t, context.Background(), o)
	assert.Equal(t, consumer.StateFailed, h.w.Stats().State)
	assert.Equal(t, 1, h.rec.Closed())
}

func TestRun_CancelStopsProducingButDrains(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	rounds := 0
	o := NewOrchestrator(twoSources(), h.q, h.w, 100, 10*time.Millisecond,
		WithObserver(func(_ context.Context, round int, _ tick.Tick) {
			rounds = round
			if round == 2 {
				cancel()
			}
		}))

	res := runBounded(t, ctx, o)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 4, res.Pushed)
	assert.Equal(t, 2, rounds)
	assert.Len(t, h.rec.Written(), 4)
	assert.Equal(t, consumer.StateStopped, h.w.Stats().State)
}

func TestRun_ZeroRounds(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{})
	o := NewOrchestrator(twoSources(), h.q, h.w, 0, 0)

	res := runBounded(t, context.Background(), o)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, h.rec.Written())
	assert.Equal(t, consumer.StateStopped, h.w.Stats().State)
}

func TestRun_PacesRounds(t *testing.T) {
	h := newHarness(t, &sinktest.Recorder{})
	o := NewOrchestrator(twoSources(), h.q, h.w, 3, 30*time.Millisecond, WithObserver(nil))

	start := time.Now()
	runBounded(t, context.Background(), o)
	// 第一轮不等，之后两次间隔
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCfg_DefaultsAndValidate(t *testing.T) {
	c := Cfg{}.WithDefaults()
	assert.Equal(t, DefaultRounds, c.Rounds)
	assert.Equal(t, DefaultRoundDelay, c.RoundDelay)
	assert.Len(t, c.Symbols, 5)
	assert.True(t, c.Sinks.CSV.Enabled)
	assert.Equal(t, DefaultCSVPath, c.Sinks.CSV.Path)
	require.NoError(t, c.Validate())

	srcs, err := c.Sources()
	require.NoError(t, err)
	require.Len(t, srcs, 5)
	assert.Equal(t, "GOOG", srcs[0].Symbol())
	assert.Equal(t, "TSLA", srcs[4].Symbol())
}

func TestCfg_ValidateErrors(t *testing.T) {
	base := Cfg{}.WithDefaults()
	tests := []struct {
		name   string
		mutate func(*Cfg)
		target error
	}{
		{"no symbols", func(c *Cfg) { c.Symbols = nil }, ErrNoSymbols},
		{"duplicate", func(c *Cfg) { c.Symbols = append(c.Symbols, c.Symbols[0]) }, ErrDuplicateSymbol},
		{"bad price", func(c *Cfg) { c.Symbols[0].Price = "abc" }, ErrBadSymbol},
		{"zero price", func(c *Cfg) { c.Symbols[0].Price = "0" }, ErrBadSymbol},
		{"zero volume", func(c *Cfg) { c.Symbols[0].Volume = 0 }, ErrBadSymbol},
		{"negative rounds", func(c *Cfg) { c.Rounds = -1 }, nil},
		{"influx no url", func(c *Cfg) { c.Sinks.Influx.Enabled = true }, nil},
		{"mysql no dsn", func(c *Cfg) { c.Sinks.MySQL.Enabled = true }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Symbols = append([]SymbolCfg(nil), base.Symbols...)
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestCfg_SeedIsReproducible(t *testing.T) {
	c := Cfg{Seed: 42}.WithDefaults()
	a, err := c.Sources()
	require.NoError(t, err)
	b, err := c.Sources()
	require.NoError(t, err)
	now := fixedClock()
	for i := 0; i < 10; i++ {
		ta, tb := a[0].Generate(now), b[0].Generate(now)
		assert.True(t, ta.Price.Equal(tb.Price))
		assert.Equal(t, ta.Volume, tb.Volume)
	}
}

func TestCfg_LoadShippedYAML(t *testing.T) {
	var c Cfg
	_, err := config.Load("tick-simulator", filepath.Join("..", "..", "config", "tick-simulator.yaml"), &c)
	require.NoError(t, err)
	c = c.WithDefaults()
	require.NoError(t, c.Validate())

	assert.Equal(t, 50, c.Rounds)
	assert.Equal(t, 100*time.Millisecond, c.RoundDelay)
	assert.Equal(t, DefaultSymbols(), c.Symbols)
	assert.Equal(t, DefaultCSVPath, c.Sinks.CSV.Path)
	assert.Equal(t, "ticks", c.Sinks.Influx.Bucket)
	assert.Equal(t, time.Second, c.Sinks.Influx.FlushInterval)
	assert.Equal(t, "tickflow:ticks", c.Sinks.Redis.Stream)
	assert.Equal(t, "127.0.0.1:6379", c.Sinks.Redis.Conn.Addr)
	assert.Equal(t, 10, c.Sinks.MySQL.MaxOpen)
	assert.Equal(t, uint32(5), c.Breaker.TripConsecutiveFailures)
}
