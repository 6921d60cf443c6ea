package orm

import (
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DSN         string `mapstructure:"dsn"`          // 连接字符串
	MaxIdle     int    `mapstructure:"max_idle"`     // 最大空闲连接
	MaxOpen     int    `mapstructure:"max_open"`     // 最大打开连接
	MaxLifetime int    `mapstructure:"max_lifetime"` // 连接存活秒数
	// DryRun 只生成 SQL 不执行，也不连库
	DryRun bool `mapstructure:"dry_run"`
}

// NewMySQL 初始化 GORM
func NewMySQL(c Config) (*gorm.DB, error) {
	dsnCfg, err := mysqldrv.ParseDSN(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// time.Time 需要 parseTime
	dsnCfg.ParseTime = true

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsnCfg.FormatDSN(),
		DSNConfig:                 dsnCfg,
		SkipInitializeWithVersion: c.DryRun,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true, // 单行 insert，不需要默认事务
		DryRun:                 c.DryRun,
		DisableAutomaticPing:   c.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if c.DryRun {
		return db, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 连接池
	if c.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdle)
	}
	if c.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)
	}
	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
