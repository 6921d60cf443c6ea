package tick

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout 行格式里的时间戳，毫秒精度，本地时区
const TimestampLayout = "2006-01-02 15:04:05.000"

// Tick 某个 symbol 的一次价格/成交量观测。
// 值类型，创建后不再修改，按值穿过队列。
type Tick struct {
	Timestamp time.Time
	Symbol    string
	Price     decimal.Decimal
	Volume    int64
}

// FormattedTimestamp 例如 2024-05-01 09:30:00.123
func (t Tick) FormattedTimestamp() string {
	return t.Timestamp.Local().Format(TimestampLayout)
}

// PriceString 固定两位小数
func (t Tick) PriceString() string {
	return t.Price.StringFixed(2)
}

// Row 持久化行：timestamp,symbol,price,volume
func (t Tick) Row() []string {
	return []string{
		t.FormattedTimestamp(),
		t.Symbol,
		t.PriceString(),
		strconv.FormatInt(t.Volume, 10),
	}
}

// Header 与 Row 对应的表头
func Header() []string {
	return []string{"Timestamp", "Symbol", "Price", "Volume"}
}
