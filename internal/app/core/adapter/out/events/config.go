package events

import "time"

// 事件發布方式
const (
	DriverNone  = "none"
	DriverKafka = "kafka"
	DriverAMQP  = "amqp"
)

// Config 事件發布設定
type Config struct {
	// Driver none | kafka | amqp
	Driver  string        `yaml:"driver"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// BreakerConfig 斷路器設定
type BreakerConfig struct {
	// MaxRequests half-open 時允許通過的請求數
	MaxRequests uint32 `yaml:"max_requests"`
	// Interval closed 狀態下清除計數的週期
	Interval time.Duration `yaml:"interval"`
	// Timeout open 之後多久進入 half-open
	Timeout time.Duration `yaml:"timeout"`
	// ConsecutiveFailures 連續失敗幾次後 open
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	// PublishTimeout 單次發布的逾時
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultConfig 預設不發布事件
func DefaultConfig() Config {
	return Config{
		Driver: DriverNone,
		Kafka: KafkaConfig{
			Topic:        "cashledger.transactions",
			BatchTimeout: 10 * time.Millisecond,
		},
		AMQP: AMQPConfig{
			Exchange:   "cashledger",
			RoutingKey: "transactions",
		},
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			PublishTimeout:      3 * time.Second,
		},
	}
}
