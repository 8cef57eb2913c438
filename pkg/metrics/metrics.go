package metrics

import (
	"time"
)

// 操作結果標籤
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Collector 帳本指標收集介面，實作可以輸出到 Prometheus 等後端
type Collector interface {
	// RecordOperation 記錄一次帳本操作 (op: create/edit/delete/get/list...)
	RecordOperation(op, result string, duration time.Duration)
	// RecordBalance 設定帳戶目前餘額
	RecordBalance(accountID string, balance float64)
	// RecordEventPublished 記錄事件發布結果
	RecordEventPublished(success bool)
	// RecordCircuitState 記錄斷路器狀態
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState 斷路器狀態
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector 不做任何事的 Collector (預設值與測試用)
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op, result string, duration time.Duration) {}
func (NoOpCollector) RecordBalance(accountID string, balance float64)           {}
func (NoOpCollector) RecordEventPublished(success bool)                         {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)        {}

var _ Collector = NoOpCollector{}
