package events

import (
	"fmt"
	"io"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/metrics"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewPublisher 依設定建立事件發布者
// driver 為 none 時回傳 nil publisher (不發布)；其餘都包上斷路器
//
// 回傳:
//
//	usecase.EventPublisher: 發布者 (可為 nil)
//	io.Closer: 關閉底層連線
//	error: 連線失敗或 driver 不支援
func NewPublisher(cfg Config, collector metrics.Collector, logger *logging.Logger) (usecase.EventPublisher, io.Closer, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nopCloser{}, nil
	case DriverKafka:
		p := NewKafkaPublisher(cfg.Kafka)
		return NewBreakerPublisher(DriverKafka, p, cfg.Breaker, collector, logger), p, nil
	case DriverAMQP:
		p, err := NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		return NewBreakerPublisher(DriverAMQP, p, cfg.Breaker, collector, logger), p, nil
	}
	return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
}
