// Package api 定義 HTTP 與 gRPC 共用的請求/回應格式
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// DateLayout 只有日期的格式
const DateLayout = "2006-01-02"

// TransactionRequest create / edit 的 body
type TransactionRequest struct {
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	Category            string          `json:"category,omitempty"`
	Type                string          `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	AccountID           string          `json:"accountId"`
	TransferToAccountID string          `json:"transferToAccountId,omitempty"`
	// TransactionDate RFC3339 或 YYYY-MM-DD，新增時空白使用目前時間，編輯時空白沿用原日期
	TransactionDate string `json:"transactionDate,omitempty"`
}

// ToFields 轉成 domain.TransactionFields
// 只做格式解析，欄位不變量由 Ledger 驗證
//
// 參數:
//
//	now: 未帶日期時使用的時間，零值時日期保持空白 (編輯沿用原日期)
//	loc: 只有日期時所在的時區
func (r TransactionRequest) ToFields(now time.Time, loc *time.Location) (domain.TransactionFields, error) {
	t, err := domain.ParseTransactionType(r.Type)
	if err != nil {
		return domain.TransactionFields{}, err
	}
	kind, err := domain.KindOf(t, domain.AccountID(strings.TrimSpace(r.TransferToAccountID)))
	if err != nil {
		return domain.TransactionFields{}, err
	}

	date := now
	if strings.TrimSpace(r.TransactionDate) != "" {
		date, err = ParseDate(r.TransactionDate, loc)
		if err != nil {
			return domain.TransactionFields{}, domain.NewValidationError("transactionDate", err.Error())
		}
	}

	return domain.TransactionFields{
		Name:            strings.TrimSpace(r.Name),
		Description:     strings.TrimSpace(r.Description),
		Category:        strings.TrimSpace(r.Category),
		Kind:            kind,
		Amount:          r.Amount,
		AccountID:       domain.AccountID(strings.TrimSpace(r.AccountID)),
		TransactionDate: date,
	}, nil
}

// FromTransaction 由交易組出可再送出的 body (CLI 編輯用)
func FromTransaction(tx *domain.Transaction) TransactionRequest {
	to, _ := tx.TransferTo()
	return TransactionRequest{
		Name:                tx.Name,
		Description:         tx.Description,
		Category:            tx.Category,
		Type:                string(tx.Type()),
		Amount:              tx.Amount,
		AccountID:           string(tx.AccountID),
		TransferToAccountID: string(to),
		TransactionDate:     tx.TransactionDate.Format(time.RFC3339Nano),
	}
}

// ParseDate 解析 RFC3339 或 YYYY-MM-DD (在 loc 的當天 00:00)
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// CreateTransactionRequest gRPC CreateTransaction
type CreateTransactionRequest struct {
	// RefID 外部追蹤號，同一個 RefID 只會建立一次
	RefID       string             `json:"ref_id,omitempty"`
	Transaction TransactionRequest `json:"transaction"`
}

// EditTransactionRequest gRPC EditTransaction
type EditTransactionRequest struct {
	ID          string             `json:"id"`
	Transaction TransactionRequest `json:"transaction"`
}

// TransactionIDRequest gRPC GetTransaction / DeleteTransaction
type TransactionIDRequest struct {
	ID string `json:"id"`
}

// TransactionResponse 單筆交易
type TransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
}

type ListAccountsRequest struct{}

// ListAccountsResponse 所有帳戶與餘額
type ListAccountsResponse struct {
	Accounts []*domain.Account `json:"accounts"`
}

type GetBalanceRequest struct {
	AccountID string `json:"accountId"`
}

type GetBalanceResponse struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

// ErrorResponse HTTP 錯誤的 body
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
