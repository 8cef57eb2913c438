// Package query 從帳本快照推導出交易列表與統計數字
// 每次查詢都重新計算，不保留任何快取
package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// SortOrder 依交易日期排序的方向
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	// DefaultPageSize 未指定 pageSize 時的每頁筆數
	DefaultPageSize = 10
	// MaxPageSize 每頁筆數上限
	MaxPageSize = 100
	// Uncategorized 沒有分類的交易在統計中使用的名稱
	Uncategorized = "uncategorized"
)

// ParseSortOrder 解析排序方向，空字串視為 desc
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortDesc:
		return SortDesc, nil
	case SortAsc:
		return SortAsc, nil
	}
	return "", domain.NewValidationError("sort", "must be asc or desc")
}

// Params 交易列表的查詢條件，零值欄位代表不過濾
type Params struct {
	Search    string
	AccountID domain.AccountID
	Type      domain.TransactionType
	Category  string
	// Start/End 以日為單位的閉區間 (時間部分會被忽略)
	Start    time.Time
	End      time.Time
	Sort     SortOrder
	Page     int
	PageSize int
}

// Normalize 補上預設值並把分頁參數限制在合法範圍
func (p Params) Normalize() Params {
	if p.Sort != SortAsc {
		p.Sort = SortDesc
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Pagination 分頁資訊
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Summary 統計卡片用的彙總數字
// 除了 FilteredCount 以外，都是對完整交易紀錄與所有帳戶計算
type Summary struct {
	TotalBalance     decimal.Decimal                `json:"totalBalance"`
	TodayIncome      decimal.Decimal                `json:"todayIncome"`
	TodayExpense     decimal.Decimal                `json:"todayExpense"`
	TodayTransfer    decimal.Decimal                `json:"todayTransfer"`
	TransactionCount int                            `json:"transactionCount"`
	FilteredCount    int                            `json:"filteredCount"`
	CountByType      map[domain.TransactionType]int `json:"countByType"`
	CountByCategory  map[string]int                 `json:"countByCategory"`
}

// Result 一次查詢的結果
type Result struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
	Summary      Summary               `json:"summary"`
}

// StartOfDay 回傳 t 在 loc 當天的 00:00:00
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay 回傳 t 在 loc 當天的最後一奈秒
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Matches 交易是否符合所有過濾條件
func (p Params) Matches(tx *domain.Transaction, loc *time.Location) bool {
	if p.AccountID != "" {
		to, _ := tx.TransferTo()
		if tx.AccountID != p.AccountID && to != p.AccountID {
			return false
		}
	}
	if p.Type != "" && tx.Type() != p.Type {
		return false
	}
	if p.Category != "" && !strings.EqualFold(tx.Category, p.Category) {
		return false
	}
	if !p.Start.IsZero() && tx.TransactionDate.Before(StartOfDay(p.Start, loc)) {
		return false
	}
	if !p.End.IsZero() && tx.TransactionDate.After(EndOfDay(p.End, loc)) {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(p.Search)); search != "" {
		return containsFold(tx.Name, search) ||
			containsFold(tx.Description, search) ||
			containsFold(tx.Number, search) ||
			containsFold(tx.Category, search)
	}
	return true
}

func containsFold(s, lowerSubstr string) bool {
	return strings.Contains(strings.ToLower(s), lowerSubstr)
}

// Filter 回傳符合條件的交易，保留原本順序
func Filter(txs []*domain.Transaction, p Params, loc *time.Location) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if p.Matches(tx, loc) {
			out = append(out, tx)
		}
	}
	return out
}

// Sort 依交易日期排序 (原地)，同一時間的交易依建立順序
func Sort(txs []*domain.Transaction, order SortOrder) {
	slices.SortStableFunc(txs, func(a, b *domain.Transaction) int {
		c := a.TransactionDate.Compare(b.TransactionDate)
		if order == SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}

// Paginate 取出第 page 頁 (從 1 開始)，超過最後一頁時回傳空 slice
func Paginate(txs []*domain.Transaction, page, pageSize int) ([]*domain.Transaction, Pagination) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	info := Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(txs),
		TotalPages: (len(txs) + pageSize - 1) / pageSize,
	}
	start := (page - 1) * pageSize
	if start >= len(txs) {
		return []*domain.Transaction{}, info
	}
	end := min(start+pageSize, len(txs))
	return txs[start:end], info
}

// Summarize 計算總餘額、今日收支與各類型/分類筆數
func Summarize(accounts []*domain.Account, txs []*domain.Transaction, now time.Time) Summary {
	s := Summary{
		TotalBalance:     decimal.Zero,
		TodayIncome:      decimal.Zero,
		TodayExpense:     decimal.Zero,
		TodayTransfer:    decimal.Zero,
		TransactionCount: len(txs),
		CountByType:      make(map[domain.TransactionType]int),
		CountByCategory:  make(map[string]int),
	}
	for _, acc := range accounts {
		s.TotalBalance = s.TotalBalance.Add(acc.Balance)
	}

	loc := now.Location()
	todayStart, todayEnd := StartOfDay(now, loc), EndOfDay(now, loc)
	for _, tx := range txs {
		s.CountByType[tx.Type()]++
		category := strings.TrimSpace(tx.Category)
		if category == "" {
			category = Uncategorized
		}
		s.CountByCategory[category]++

		if tx.TransactionDate.Before(todayStart) || tx.TransactionDate.After(todayEnd) {
			continue
		}
		switch tx.Type() {
		case domain.TransactionTypeIncome:
			s.TodayIncome = s.TodayIncome.Add(tx.Amount)
		case domain.TransactionTypeExpense:
			s.TodayExpense = s.TodayExpense.Add(tx.Amount)
		case domain.TransactionTypeTransfer:
			s.TodayTransfer = s.TodayTransfer.Add(tx.Amount)
		}
	}
	return s
}

// Run 過濾、排序、分頁並計算統計
// now 的時區決定「今天」與日期區間的邊界
//
// 參數:
//
//	accounts: 所有帳戶 (餘額)
//	txs: 依建立順序排列的交易紀錄，不會被修改
//	p: 查詢條件
//	now: 目前時間
//
// 回傳:
//
//	Result: 當頁交易、分頁資訊與統計
func Run(accounts []*domain.Account, txs []*domain.Transaction, p Params, now time.Time) Result {
	p = p.Normalize()
	filtered := Filter(txs, p, now.Location())
	Sort(filtered, p.Sort)
	items, page := Paginate(filtered, p.Page, p.PageSize)

	summary := Summarize(accounts, txs, now)
	summary.FilteredCount = len(filtered)
	return Result{
		Transactions: items,
		Pagination:   page,
		Summary:      summary,
	}
}
