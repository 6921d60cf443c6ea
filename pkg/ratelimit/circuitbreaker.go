package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`
	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  `mapstructure:"trip_consecutive_failures"`
	TripFailureRate         float64 `mapstructure:"trip_failure_rate"`
	TripMinRequests         uint32  `mapstructure:"trip_min_requests"`
}

func (r Rule) withDefaults() Rule {
	if r.MaxRequests == 0 {
		r.MaxRequests = 1
	}
	if r.Timeout <= 0 {
		r.Timeout = 3 * time.Second
	}
	if r.Interval <= 0 {
		r.Interval = 10 * time.Second
	}
	if r.TripConsecutiveFailures == 0 && r.TripFailureRate == 0 {
		r.TripConsecutiveFailures = 5
	}
	if r.TripMinRequests == 0 {
		r.TripMinRequests = 20
	}
	return r
}

// Manager 按名字（sink 名）懒创建熔断器
type Manager struct {
	mu   sync.RWMutex
	m    map[string]*gobreaker.CircuitBreaker[struct{}]
	rule Rule

	onChange func(name string, from, to gobreaker.State)
}

func NewManager(rule Rule) *Manager {
	return &Manager{
		m:    make(map[string]*gobreaker.CircuitBreaker[struct{}], 8),
		rule: rule.withDefaults(),
	}
}

// OnStateChange 注册状态变化回调，需在第一次 Get 之前调用
func (m *Manager) OnStateChange(fn func(name string, from, to gobreaker.State)) {
	m.onChange = fn
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule := m.rule
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Interval:    rule.Interval,
		Timeout:     rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		IsSuccessful: isSuccessfulForBreaker,
	}
	if m.onChange != nil {
		fn := m.onChange
		st.OnStateChange = func(name string, from, to gobreaker.State) { fn(name, from, to) }
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[name] = cb
	return cb
}

// Do 在名为 name 的熔断器里执行 fn
func (m *Manager) Do(name string, fn func() error) error {
	_, err := m.Get(name).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// IsOpen 熔断器拒绝的错误
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// 调用方主动取消不代表下游不健康
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
