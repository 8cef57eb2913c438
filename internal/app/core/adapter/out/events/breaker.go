package events

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/metrics"
)

// ErrCircuitOpen 斷路器開啟，事件沒有送出
var ErrCircuitOpen = errors.New("event publisher circuit open")

// BreakerPublisher 用斷路器與逾時保護下游的 EventPublisher
// broker 掛掉時快速失敗，不拖慢已提交的帳本操作
type BreakerPublisher struct {
	name    string
	next    usecase.EventPublisher
	cb      *gobreaker.CircuitBreaker
	cfg     BreakerConfig
	metrics metrics.Collector
	logger  *logging.Logger
}

func NewBreakerPublisher(name string, next usecase.EventPublisher, cfg BreakerConfig, collector metrics.Collector, logger *logging.Logger) *BreakerPublisher {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.L()
	}
	bp := &BreakerPublisher{
		name:    name,
		next:    next,
		cfg:     cfg,
		metrics: collector,
		logger:  logger.Named("events").Named(name),
	}

	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	bp.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			bp.logger.Warn("circuit breaker state changed",
				zap.String("publisher", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			bp.metrics.RecordCircuitState(name, circuitState(to))
		},
	})
	return bp
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

func (bp *BreakerPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	if bp.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bp.cfg.PublishTimeout)
		defer cancel()
	}

	_, err := bp.cb.Execute(func() (interface{}, error) {
		return nil, bp.next.Publish(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State 目前斷路器狀態
func (bp *BreakerPublisher) State() metrics.CircuitState {
	return circuitState(bp.cb.State())
}
