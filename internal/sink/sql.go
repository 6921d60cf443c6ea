package sink

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"tickflow.com/internal/tick"
)

// TickRow ticks 表
type TickRow struct {
	ID     uint64          `gorm:"primaryKey;autoIncrement"`
	RunID  string          `gorm:"size:36;index:idx_run_symbol,priority:1"`
	Symbol string          `gorm:"size:16;index:idx_run_symbol,priority:2"`
	Ts     time.Time       `gorm:"precision:3;index"`
	Price  decimal.Decimal `gorm:"type:decimal(20,8)"`
	Volume int64
}

func (TickRow) TableName() string { return "ticks" }

// SQL 每个 tick 插一行，db 的连接池由外部管理
type SQL struct {
	db          *gorm.DB
	runID       string
	autoMigrate bool
	open        bool
}

func NewSQL(db *gorm.DB, runID string, autoMigrate bool) *SQL {
	return &SQL{db: db, runID: runID, autoMigrate: autoMigrate}
}

func (s *SQL) Name() string { return "mysql" }

func (s *SQL) Open(ctx context.Context) error {
	if s.autoMigrate && !s.db.DryRun {
		if err := s.db.WithContext(ctx).AutoMigrate(&TickRow{}); err != nil {
			return err
		}
	}
	s.open = true
	return nil
}

func (s *SQL) Write(ctx context.Context, t tick.Tick) error {
	if !s.open {
		return ErrNotOpen
	}
	row := TickRow{
		RunID:  s.runID,
		Symbol: t.Symbol,
		Ts:     t.Timestamp,
		Price:  t.Price,
		Volume: t.Volume,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Close 不关闭连接池
func (s *SQL) Close() error {
	s.open = false
	return nil
}
