package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxNameLength 交易名稱與描述的長度上限
const MaxNameLength = 200

// TransactionType 交易類型
type TransactionType string

const (
	// 收入
	TransactionTypeIncome TransactionType = "income"
	// 支出
	TransactionTypeExpense TransactionType = "expense"
	// 轉帳
	TransactionTypeTransfer TransactionType = "transfer"
)

// ParseTransactionType 解析交易類型字串
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return t, nil
	}
	return "", NewValidationError("type", fmt.Sprintf("unknown transaction type %q", s))
}

// Kind 是交易類型的 tagged variant
// 只有 Transfer 帶有目的帳戶，非轉帳交易在型別上就不可能有 transferToAccountId
type Kind interface {
	Type() TransactionType
	isKind()
}

// Income 收入: 來源帳戶 +amount
type Income struct{}

// Expense 支出: 來源帳戶 -amount
type Expense struct{}

// Transfer 轉帳: 來源帳戶 -amount，目的帳戶 +amount
type Transfer struct {
	To AccountID
}

func (Income) Type() TransactionType   { return TransactionTypeIncome }
func (Expense) Type() TransactionType  { return TransactionTypeExpense }
func (Transfer) Type() TransactionType { return TransactionTypeTransfer }

func (Income) isKind()   {}
func (Expense) isKind()  {}
func (Transfer) isKind() {}

// KindOf 由扁平欄位 (type + transferToAccountId) 組出 Kind
// 非轉帳卻帶了 transferTo 視為不合法
func KindOf(t TransactionType, transferTo AccountID) (Kind, error) {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense:
		if transferTo != "" {
			return nil, NewValidationError("transferToAccountId", "only allowed for transfers")
		}
		if t == TransactionTypeIncome {
			return Income{}, nil
		}
		return Expense{}, nil
	case TransactionTypeTransfer:
		if transferTo == "" {
			return nil, NewValidationError("transferToAccountId", "required for transfers")
		}
		return Transfer{To: transferTo}, nil
	}
	return nil, NewValidationError("type", fmt.Sprintf("unknown transaction type %q", t))
}

// TransactionFields 交易中可由使用者建立/編輯的欄位 (create / edit 的 body)
type TransactionFields struct {
	Name            string
	Description     string
	Category        string
	Kind            Kind
	Amount          decimal.Decimal
	AccountID       AccountID
	TransactionDate time.Time
}

// Type 回傳交易類型，Kind 為 nil 時回傳空字串
func (f TransactionFields) Type() TransactionType {
	if f.Kind == nil {
		return ""
	}
	return f.Kind.Type()
}

// TransferTo 回傳轉帳目的帳戶
func (f TransactionFields) TransferTo() (AccountID, bool) {
	if t, ok := f.Kind.(Transfer); ok {
		return t.To, true
	}
	return "", false
}

// WithDefaultDate 交易日期為零值時以 fallback 補上
// 編輯時未帶日期就沿用舊紀錄的日期
func (f TransactionFields) WithDefaultDate(fallback time.Time) TransactionFields {
	if f.TransactionDate.IsZero() {
		f.TransactionDate = fallback
	}
	return f
}

// Validate 檢查欄位不變量，不檢查帳戶是否存在 (由 Ledger 負責)
func (f TransactionFields) Validate() error {
	return f.validate(true)
}

// ValidateEdit 與 Validate 相同，但允許交易日期為零值 (沿用舊紀錄的日期)
func (f TransactionFields) ValidateEdit() error {
	return f.validate(false)
}

func (f TransactionFields) validate(requireDate bool) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if len(name) > MaxNameLength {
		return NewValidationError("name", fmt.Sprintf("too long (max %d characters)", MaxNameLength))
	}
	if len(f.Description) > MaxNameLength {
		return NewValidationError("description", fmt.Sprintf("too long (max %d characters)", MaxNameLength))
	}
	if !f.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero", Err: ErrAmountMustBePositive}
	}
	if f.AccountID == "" {
		return NewValidationError("accountId", "must not be empty")
	}
	if requireDate && f.TransactionDate.IsZero() {
		return NewValidationError("transactionDate", "must not be zero")
	}
	switch k := f.Kind.(type) {
	case Income, Expense:
	case Transfer:
		if k.To == "" {
			return NewValidationError("transferToAccountId", "required for transfers")
		}
		if k.To == f.AccountID {
			return NewValidationError("transferToAccountId", "must differ from accountId")
		}
	default:
		return NewValidationError("type", "missing transaction type")
	}
	return nil
}

// GetLockIDs 回傳需要鎖定的帳號 ID，排序並去重以避免死鎖
func (f TransactionFields) GetLockIDs() []AccountID {
	ids := make([]AccountID, 0, 2)
	ids = append(ids, f.AccountID)
	if to, ok := f.TransferTo(); ok {
		ids = append(ids, to)
	}
	return MergeLockIDs(ids)
}

// MergeLockIDs 合併多組帳號 ID，回傳排序、去重、去空值後的結果
func MergeLockIDs(groups ...[]AccountID) []AccountID {
	merged := make([]AccountID, 0, 4)
	for _, g := range groups {
		for _, id := range g {
			if id != "" {
				merged = append(merged, id)
			}
		}
	}
	slices.Sort(merged)
	return slices.Compact(merged)
}

// Transaction 交易紀錄
type Transaction struct {
	// ID: 內部唯一識別 (UUID)
	ID uuid.UUID
	// Number: 人類可讀的交易號碼，建立時分配，刪除後也不會重用
	Number string
	// Sequence: 建立順序 (1, 2, 3...)，同時作為排序時的 tie-breaker
	Sequence uint64
	TransactionFields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone 回傳交易的複本
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// FormatNumber 由序號產生交易號碼
func FormatNumber(seq uint64) string {
	return fmt.Sprintf("TXN-%06d", seq)
}

// transactionJSON 扁平的 JSON 形狀，WAL / 事件 / API 共用
type transactionJSON struct {
	ID              uuid.UUID       `json:"id"`
	Number          string          `json:"transactionNumber"`
	Sequence        uint64          `json:"sequence"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	AccountID       AccountID       `json:"accountId"`
	TransferTo      AccountID       `json:"transferToAccountId,omitempty"`
	TransactionDate time.Time       `json:"transactionDate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	to, _ := t.TransferTo()
	return json.Marshal(transactionJSON{
		ID:              t.ID,
		Number:          t.Number,
		Sequence:        t.Sequence,
		Name:            t.Name,
		Description:     t.Description,
		Category:        t.Category,
		Type:            t.Type(),
		Amount:          t.Amount,
		AccountID:       t.AccountID,
		TransferTo:      to,
		TransactionDate: t.TransactionDate,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := KindOf(raw.Type, raw.TransferTo)
	if err != nil {
		return err
	}
	*t = Transaction{
		ID:       raw.ID,
		Number:   raw.Number,
		Sequence: raw.Sequence,
		TransactionFields: TransactionFields{
			Name:            raw.Name,
			Description:     raw.Description,
			Category:        raw.Category,
			Kind:            kind,
			Amount:          raw.Amount,
			AccountID:       raw.AccountID,
			TransactionDate: raw.TransactionDate,
		},
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}
