package mysql

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
)

// Client 封裝 GORM DB 實例
type Client struct {
	db *gorm.DB
}

// NewClient 建立並回傳一個新的 MySQL 客戶端實例 (GORM)
//
// 參數:
//
//	cfg: Config - MySQL 連線配置
//	log: 重試過程的 logger (nil 使用全域 logger)
//
// 回傳值:
//
//	*Client: 封裝後的 MySQL 客戶端
//	error: 若連線失敗則回傳錯誤
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = logging.L()
	}
	return open(mysql.Open(cfg.DSN()), cfg, log.Named("mysql"))
}

func open(dialector gorm.Dialector, cfg Config, log *logging.Logger) (*Client, error) {
	db, err := connectWithRetry(dialector, cfg, log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info("connected to mysql", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return &Client{db: db}, nil
}

// connectWithRetry 連線並 Ping，失敗時以固定間隔重試 MaxRetries 次
func connectWithRetry(dialector gorm.Dialector, cfg Config, log *logging.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// 帳本的每個寫入都自己開 Transaction
		SkipDefaultTransaction: true,
		// duplicate key 轉成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         newLogger(cfg.LogLevel),
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		db, err := gorm.Open(dialector, gormConfig)
		if err == nil {
			err = ping(db)
		}
		if err == nil {
			return db, nil
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
		log.Warn("connect to mysql failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("retry_in", cfg.RetryInterval),
			zap.Error(err),
		)
		time.Sleep(cfg.RetryInterval)
	}
	return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB 回傳底層的 *gorm.DB 實例，供 adapter 使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Close 關閉資料庫連線
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var gormLogLevels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Info,
}

// newLogger GORM 的 SQL log，未知等級只記錄錯誤
func newLogger(level string) logger.Interface {
	logLevel, ok := gormLogLevels[level]
	if !ok {
		logLevel = logger.Error
	}
	return logger.Default.LogMode(logLevel)
}
