package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tickflow.com/pkg/metrics"
)

// influxServer 记录写入的 line protocol；failing 为 true 时返回 400
type influxServer struct {
	mu      sync.Mutex
	bodies  []string
	failing bool
}

func (s *influxServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.bodies = append(s.bodies, string(body))
	failing := s.failing
	s.mu.Unlock()
	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *influxServer) all() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.bodies, "\n")
}

func TestInflux_AsyncFlushesOnClose(t *testing.T) {
	is := &influxServer{}
	srv := httptest.NewServer(is)
	defer srv.Close()

	// 批量和刷新间隔都很大，只有 Close 会把数据推出去
	s := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "ticks", BatchSize: 100, FlushInterval: time.Hour})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	for _, tk := range sampleTicks() {
		require.NoError(t, s.Write(ctx, tk))
	}
	assert.Empty(t, is.all())

	require.NoError(t, s.Close())
	assert.Eventually(t, func() bool {
		return strings.Count(is.all(), "tick,symbol=") == len(sampleTicks())
	}, 3*time.Second, 10*time.Millisecond)
	body := is.all()
	assert.Contains(t, body, "tick,symbol=GOOG ")
	assert.Contains(t, body, "tick,symbol=AAPL ")
	assert.ErrorIs(t, s.Write(ctx, sampleTicks()[0]), ErrNotOpen)
}

func TestInflux_AsyncErrorsAreDrained(t *testing.T) {
	is := &influxServer{failing: true}
	srv := httptest.NewServer(is)
	defer srv.Close()

	counter := metrics.SinkWritesTotal.WithLabelValues("influx", "async_error")
	before := testutil.ToFloat64(counter)

	s := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "ticks", BatchSize: 1, FlushInterval: time.Hour})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	// 异步写入失败不会返回给调用方
	require.NoError(t, s.Write(ctx, sampleTicks()[0]))

	assert.Eventually(t, func() bool { return testutil.ToFloat64(counter) > before }, 3*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked")
	}
}

// captureHook 截住所有命令，不走网络
type captureHook struct {
	mu      sync.Mutex
	cmds    [][]interface{}
	pipeErr error
}

func (h *captureHook) record(cmd redis.Cmder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd.Args())
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *captureHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.record(cmd)
		return nil
	}
}

func (h *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, c := range cmds {
			h.record(c)
		}
		return h.pipeErr
	}
}

func (h *captureHook) byName(name string) [][]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out [][]interface{}
	for _, args := range h.cmds {
		if len(args) > 0 && strings.EqualFold(args[0].(string), name) {
			out = append(out, args)
		}
	}
	return out
}

func newHookedRedis(t *testing.T, h *captureHook) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	rdb.AddHook(h)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedis_WriteStreamAndLatest(t *testing.T) {
	h := &captureHook{}
	s := NewRedis(newHookedRedis(t, h), RedisConfig{MaxLen: 500})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	require.Len(t, h.byName("ping"), 1)

	tk := sampleTicks()[0]
	require.NoError(t, s.Write(ctx, tk))

	xadds := h.byName("xadd")
	require.Len(t, xadds, 1)
	x := xadds[0]
	assert.Equal(t, "tickflow:ticks", x[1])
	assert.Contains(t, x, "maxlen")
	assert.Contains(t, x, "~")
	assert.Contains(t, x, "GOOG")

	hsets := h.byName("hset")
	require.Len(t, hsets, 1)
	assert.Equal(t, "tickflow:last:GOOG", hsets[0][1])
	assert.Contains(t, hsets[0], "150.01")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(ctx, tk), ErrNotOpen)
}

func TestRedis_WriteErrorReturned(t *testing.T) {
	boom := errors.New("READONLY")
	h := &captureHook{pipeErr: boom}
	s := NewRedis(newHookedRedis(t, h), RedisConfig{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	assert.ErrorIs(t, s.Write(ctx, sampleTicks()[0]), boom)
}
