package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType 帳本事件類型
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionEdited  EventType = "transaction.edited"
	EventTransactionDeleted EventType = "transaction.deleted"
)

// LedgerEvent 交易提交後對外發布的事件
type LedgerEvent struct {
	ID          uuid.UUID                     `json:"id"`
	Type        EventType                     `json:"type"`
	Transaction *Transaction                  `json:"transaction"`
	Previous    *Transaction                  `json:"previous,omitempty"`
	Balances    map[AccountID]decimal.Decimal `json:"balances"`
	OccurredAt  time.Time                     `json:"occurredAt"`
}

// NewLedgerEvent 建立事件，Balances 為操作後受影響帳戶的餘額
func NewLedgerEvent(t EventType, tx, previous *Transaction, balances map[AccountID]decimal.Decimal, at time.Time) LedgerEvent {
	return LedgerEvent{
		ID:          uuid.New(),
		Type:        t,
		Transaction: tx,
		Previous:    previous,
		Balances:    balances,
		OccurredAt:  at,
	}
}
