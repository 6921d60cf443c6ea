package sink

import (
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"tickflow.com/internal/tick"
)

// wire 对外的 JSON 形态，价格用十进制字符串避免 float 误差
type wire struct {
	TsMs   int64           `json:"ts"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
}

func EncodeTick(t tick.Tick) ([]byte, error) {
	return json.Marshal(wire{
		TsMs:   t.Timestamp.UnixMilli(),
		Symbol: t.Symbol,
		Price:  t.Price,
		Volume: t.Volume,
	})
}

func DecodeTick(b []byte) (tick.Tick, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return tick.Tick{}, err
	}
	return tick.Tick{
		Timestamp: time.UnixMilli(w.TsMs),
		Symbol:    w.Symbol,
		Price:     w.Price,
		Volume:    w.Volume,
	}, nil
}

// AppendTick 手写编码，输出和 EncodeTick 逐字节一致，WAL 热路径复用 dst 避免分配。
// symbol 里有需要转义的字符时退回 EncodeTick
func AppendTick(dst []byte, t tick.Tick) []byte {
	if !plainSymbol(t.Symbol) {
		b, err := EncodeTick(t)
		if err != nil {
			return dst
		}
		return append(dst, b...)
	}
	dst = append(dst, `{"ts":`...)
	dst = strconv.AppendInt(dst, t.Timestamp.UnixMilli(), 10)
	dst = append(dst, `,"symbol":"`...)
	dst = append(dst, t.Symbol...)
	dst = append(dst, `","price":"`...)
	dst = append(dst, t.Price.String()...)
	dst = append(dst, `","volume":`...)
	dst = strconv.AppendInt(dst, t.Volume, 10)
	return append(dst, '}')
}

func plainSymbol(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x80 || c == '"' || c == '\\' || c == '<' || c == '>' || c == '&' {
			return false
		}
	}
	return true
}
