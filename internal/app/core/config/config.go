package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/events"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
)

// DefaultPath 預設設定檔位置
const DefaultPath = "config/config.yaml"

// 帳本引擎
const (
	EngineMutex = "mutex"
	EngineLMAX  = "lmax"
	EngineMySQL = "mysql"
)

// Config 服務的完整設定
type Config struct {
	Server ServerConfig   `yaml:"server"`
	Ledger LedgerConfig   `yaml:"ledger"`
	MySQL  mysql.Config   `yaml:"mysql"`
	Events events.Config  `yaml:"events"`
	Log    logging.Config `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LedgerConfig struct {
	// Engine mutex | lmax | mysql
	Engine string `yaml:"engine"`
	// WALPath 記憶體引擎的 WAL 檔案，空字串代表不寫 WAL
	WALPath string `yaml:"wal_path"`
	// Timezone 計算「今天」與日期範圍用的時區 (IANA 名稱或 Local)
	Timezone       string          `yaml:"timezone"`
	MaxLockRetries int             `yaml:"max_lock_retries"`
	Accounts       []AccountConfig `yaml:"accounts"`
}

// AccountConfig 啟動時建立的帳戶，餘額一律從 0 開始
type AccountConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Default 回傳預設設定
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Engine:         EngineMutex,
			WALPath:        "data/wal.log",
			Timezone:       "Local",
			MaxLockRetries: 5,
			Accounts: []AccountConfig{
				{ID: "drawer", Name: "Till Drawer", Type: string(domain.AccountTypeDrawer)},
				{ID: "cash_in_hand", Name: "Cash in Hand", Type: string(domain.AccountTypeCashInHand)},
				{ID: "business", Name: "Business Account", Type: string(domain.AccountTypeBusiness)},
			},
		},
		MySQL:  mysql.Config{}.WithDefaults(),
		Events: events.DefaultConfig(),
		Log:    logging.DefaultConfig(),
	}
}

// Load 載入設定: 預設值 -> YAML 檔 -> .env / 環境變數
//
// 參數:
//
//	path: 設定檔路徑，空字串時使用 LEDGER_CONFIG 或 DefaultPath
//
// 回傳值:
//
//	*Config: 已驗證的設定
//	error: 讀檔、解析或驗證失敗
func Load(path string) (*Config, error) {
	// .env 不存在是正常的
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		if env, ok := os.LookupEnv("LEDGER_CONFIG"); ok && env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// 沒有設定檔就使用預設值
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.MySQL = cfg.MySQL.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 以環境變數覆寫設定
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LEDGER_HTTP_ADDR", &c.Server.HTTPAddr)
	str("LEDGER_GRPC_ADDR", &c.Server.GRPCAddr)
	str("LEDGER_ENGINE", &c.Ledger.Engine)
	str("LEDGER_TIMEZONE", &c.Ledger.Timezone)
	str("LEDGER_EVENTS_DRIVER", &c.Events.Driver)
	str("LEDGER_AMQP_URL", &c.Events.AMQP.URL)
	str("MYSQL_HOST", &c.MySQL.Host)
	str("MYSQL_USER", &c.MySQL.User)
	str("MYSQL_PASSWORD", &c.MySQL.Password)
	str("MYSQL_DB", &c.MySQL.DBName)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	// WAL 路徑允許以空字串關閉
	if v, ok := lookup("LEDGER_WAL_PATH"); ok {
		c.Ledger.WALPath = v
	}
	if v, ok := lookup("LEDGER_KAFKA_BROKERS"); ok && v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("MYSQL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYSQL_PORT: %w", err)
		}
		c.MySQL.Port = port
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate 檢查設定，所有問題一次回報
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Server.GRPCAddr == "" {
		errs = append(errs, errors.New("server.grpc_addr is required"))
	}

	switch c.Ledger.Engine {
	case EngineMutex, EngineLMAX:
	case EngineMySQL:
		if err := c.MySQL.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.engine %q must be one of %s, %s, %s", c.Ledger.Engine, EngineMutex, EngineLMAX, EngineMySQL))
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("ledger.timezone: %w", err))
	}
	if c.Ledger.MaxLockRetries < 0 {
		errs = append(errs, errors.New("ledger.max_lock_retries must not be negative"))
	}
	if len(c.Ledger.Accounts) == 0 {
		errs = append(errs, errors.New("ledger.accounts must not be empty"))
	}
	seen := make(map[string]bool, len(c.Ledger.Accounts))
	for i, acc := range c.Ledger.Accounts {
		switch {
		case acc.ID == "":
			errs = append(errs, fmt.Errorf("ledger.accounts[%d].id is required", i))
		case seen[acc.ID]:
			errs = append(errs, fmt.Errorf("ledger.accounts[%d].id %q is duplicated", i, acc.ID))
		}
		seen[acc.ID] = true
		if !domain.AccountType(acc.Type).Valid() {
			errs = append(errs, fmt.Errorf("ledger.accounts[%d].type %q is unknown", i, acc.Type))
		}
	}

	switch c.Events.Driver {
	case events.DriverNone, "":
	case events.DriverKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("events.kafka.brokers is required for the kafka driver"))
		}
	case events.DriverAMQP:
		if c.Events.AMQP.URL == "" {
			errs = append(errs, errors.New("events.amqp.url is required for the amqp driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.driver %q is unknown", c.Events.Driver))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Location 回傳設定的時區
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Ledger.Timezone)
}

// Accounts 依設定建立初始帳戶 (餘額 0)
func (c *Config) Accounts() map[domain.AccountID]*domain.Account {
	accounts := make(map[domain.AccountID]*domain.Account, len(c.Ledger.Accounts))
	for _, acc := range c.Ledger.Accounts {
		id := domain.AccountID(acc.ID)
		accounts[id] = domain.NewAccount(id, acc.Name, domain.AccountType(acc.Type))
	}
	return accounts
}
