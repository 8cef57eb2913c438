package domain

import (
	"github.com/shopspring/decimal"
)

// AccountID 帳戶 ID (例如 "drawer")，鎖定順序以字典序排序
type AccountID string

// AccountType 帳戶類型
type AccountType string

const (
	// 收銀抽屜
	AccountTypeDrawer AccountType = "drawer"
	// 手頭現金
	AccountTypeCashInHand AccountType = "cash_in_hand"
	// 公司帳戶
	AccountTypeBusiness AccountType = "business"
	// 其他
	AccountTypeOther AccountType = "other"
)

// Valid 檢查帳戶類型是否已知
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeDrawer, AccountTypeCashInHand, AccountTypeBusiness, AccountTypeOther:
		return true
	}
	return false
}

// Account 持有現金的帳戶
// Balance 永遠等於所有未刪除交易對此帳戶效果的總和
type Account struct {
	ID      AccountID       `json:"id" yaml:"id"`
	Name    string          `json:"name" yaml:"name"`
	Type    AccountType     `json:"type" yaml:"type"`
	Balance decimal.Decimal `json:"balance" yaml:"-"`
}

func NewAccount(id AccountID, name string, accountType AccountType) *Account {
	return &Account{
		ID:      id,
		Name:    name,
		Type:    accountType,
		Balance: decimal.Zero,
	}
}

// Apply 將帶正負號的 delta 加到餘額上
// 允許餘額為負 (現金帳可以透支)
func (a *Account) Apply(delta decimal.Decimal) {
	a.Balance = a.Balance.Add(delta)
}

// Clone 回傳帳戶的複本，避免外部修改內部狀態
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
