package tick

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/rand"
)

// Source 一个 symbol 的行情源。
// Generate 会推进内部状态，只允许生产者协程调用，不会失败。
type Source interface {
	Symbol() string
	Generate(now time.Time) Tick
}

var (
	minPrice = decimal.New(1, -2) // 0.01
	stepSize = decimal.New(1, -1) // 0.1
	halfUnit = decimal.New(5, -1) // 0.5
)

const (
	minVolume       = 1
	volumeStepLow   = 1
	volumeStepRange = 100 // [1, 100]
)

// RandomWalk 随机游走行情：
//   price += U(-0.5, 0.5) * 0.1，下限 0.01
//   volume += U{1..100}，下限 1
//
// 状态只属于持有它的生产者，不加锁。
type RandomWalk struct {
	symbol string
	price  decimal.Decimal
	volume int64
	rng    *rand.Rand
}

// NewRandomWalk seed 相同则序列相同，测试可复现
func NewRandomWalk(symbol string, initialPrice decimal.Decimal, initialVolume int64, seed uint64) *RandomWalk {
	return &RandomWalk{
		symbol: symbol,
		price:  initialPrice,
		volume: initialVolume,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (g *RandomWalk) Symbol() string { return g.symbol }

func (g *RandomWalk) Generate(now time.Time) Tick {
	drift := decimal.NewFromFloat(g.rng.Float64()).Sub(halfUnit).Mul(stepSize)
	g.price = g.price.Add(drift)
	if g.price.LessThan(minPrice) {
		g.price = minPrice
	}

	g.volume += int64(volumeStepLow + g.rng.Intn(volumeStepRange))
	if g.volume < minVolume {
		g.volume = minVolume
	}

	return Tick{
		Timestamp: now.Truncate(time.Millisecond),
		Symbol:    g.symbol,
		Price:     g.price,
		Volume:    g.volume,
	}
}
