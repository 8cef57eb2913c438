package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalOp 帳本變更種類
type JournalOp string

const (
	JournalOpCreate JournalOp = "create"
	JournalOpEdit   JournalOp = "edit"
	JournalOpDelete JournalOp = "delete"
)

// JournalEntry 只增不減的變更紀錄，寫進 WAL 並可重放
// create: Before=nil, After=新交易
// edit:   Before=舊交易, After=新交易
// delete: Before=舊交易, After=nil
type JournalEntry struct {
	// Sequence: 全局遞增序號 (每筆變更一號，與交易號碼分開)
	Sequence      uint64    `json:"sequence"`
	Op            JournalOp `json:"op"`
	TransactionID string    `json:"transactionId"`
	// IdempotencyKey: 建立時帶入的外部追蹤號，重放時用來恢復去重表
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	Before         *Transaction `json:"before,omitempty"`
	After          *Transaction `json:"after,omitempty"`
	At             time.Time    `json:"at"`
}

// Effects 回傳此筆變更對帳戶的完整效果
func (e JournalEntry) Effects() []Effect {
	var effects []Effect
	if e.Before != nil {
		effects = append(effects, Reverse(EffectsOf(e.Before.TransactionFields))...)
	}
	if e.After != nil {
		effects = append(effects, EffectsOf(e.After.TransactionFields)...)
	}
	return effects
}

// FoldBalances 將一串 journal entries 的效果折疊成各帳戶餘額 (時間點重建)
func FoldBalances(entries []JournalEntry) map[AccountID]decimal.Decimal {
	balances := make(map[AccountID]decimal.Decimal)
	for _, entry := range entries {
		for _, e := range entry.Effects() {
			balances[e.AccountID] = balances[e.AccountID].Add(e.Delta)
		}
	}
	return balances
}
