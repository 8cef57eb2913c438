package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Role 帳戶在交易中的角色
type Role uint8

const (
	// 來源帳戶 (accountId)
	RoleSource Role = 1
	// 目的帳戶 (transferToAccountId)
	RoleDestination Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Effect 交易對單一帳戶造成的帶號餘額變化
type Effect struct {
	AccountID AccountID       `json:"accountId"`
	Role      Role            `json:"role"`
	Delta     decimal.Decimal `json:"delta"`
}

// Sign 回傳 (type, role) 對應的正負號
//
//	income   + source      -> +1
//	expense  + source      -> -1
//	transfer + source      -> -1
//	transfer + destination -> +1
func Sign(t TransactionType, r Role) (int64, error) {
	switch {
	case t == TransactionTypeIncome && r == RoleSource:
		return 1, nil
	case t == TransactionTypeExpense && r == RoleSource:
		return -1, nil
	case t == TransactionTypeTransfer && r == RoleSource:
		return -1, nil
	case t == TransactionTypeTransfer && r == RoleDestination:
		return 1, nil
	}
	return 0, fmt.Errorf("no effect for %s as %s", t, r)
}

// EffectsOf 計算交易欄位對各帳戶的效果 (apply 路徑)
// 轉帳會產生兩筆：來源與目的
func EffectsOf(f TransactionFields) []Effect {
	effects := make([]Effect, 0, 2)
	t := f.Type()
	if sign, err := Sign(t, RoleSource); err == nil {
		effects = append(effects, Effect{
			AccountID: f.AccountID,
			Role:      RoleSource,
			Delta:     f.Amount.Mul(decimal.NewFromInt(sign)),
		})
	}
	if to, ok := f.TransferTo(); ok {
		if sign, err := Sign(t, RoleDestination); err == nil {
			effects = append(effects, Effect{
				AccountID: to,
				Role:      RoleDestination,
				Delta:     f.Amount.Mul(decimal.NewFromInt(sign)),
			})
		}
	}
	return effects
}

// Reverse 回傳效果的算術反向 (reverse 路徑)，apply(Reverse(x)) 恰好抵銷 apply(x)
func Reverse(effects []Effect) []Effect {
	reversed := make([]Effect, len(effects))
	for i, e := range effects {
		reversed[i] = Effect{
			AccountID: e.AccountID,
			Role:      e.Role,
			Delta:     e.Delta.Neg(),
		}
	}
	return reversed
}

// EditEffects 編輯 = 先完整反轉舊效果，再完整套用新效果
// 舊交易與新交易參照的帳戶可以不同
func EditEffects(old, updated TransactionFields) []Effect {
	return append(Reverse(EffectsOf(old)), EffectsOf(updated)...)
}

// NetByAccount 將效果依帳戶加總，方便檢查與記錄
func NetByAccount(effects []Effect) map[AccountID]decimal.Decimal {
	net := make(map[AccountID]decimal.Decimal, len(effects))
	for _, e := range effects {
		net[e.AccountID] = net[e.AccountID].Add(e.Delta)
	}
	return net
}
