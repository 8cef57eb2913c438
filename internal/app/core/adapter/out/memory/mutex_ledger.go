package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

// DefaultMaxLockRetries Edit/Delete 鎖定帳戶時最多重試幾次
const DefaultMaxLockRetries = 5

// MutexLedger 是一個使用 per-account Mutex 實現的帳本
//
// 結構:
//
//	book: 帳戶、交易紀錄與 journal
//	maxLockRetries: 鎖定期間交易帳戶被改動時的重試上限
//
// 每個操作依排序後的帳戶 ID 鎖定 (舊交易與新欄位涉及的帳戶聯集)，
// 整個操作期間持有，兩筆方向相反的轉帳也不會死鎖
type MutexLedger struct {
	book           *book
	maxLockRetries int
}

// options 兩種記憶體帳本共用的選項
type options struct {
	now            func() time.Time
	maxLockRetries int
}

// Option 帳本選項
type Option func(*options)

// WithClock 注入時鐘 (測試用)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMaxLockRetries 設定鎖定重試上限 (只對 MutexLedger 有意義)
func WithMaxLockRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLockRetries = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, maxLockRetries: DefaultMaxLockRetries}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 Map
//	wal: Write-Ahead Log 實例 (nil 代表不持久化)
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts map[domain.AccountID]*domain.Account, wal *wal.WAL, opts ...Option) (*MutexLedger, error) {
	o := buildOptions(opts)
	ledger := &MutexLedger{
		book:           newBook(accounts, wal, o.now),
		maxLockRetries: o.maxLockRetries,
	}
	if err := ledger.book.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// CreateTransaction 建立交易
//
// 參數:
//
//	ctx: 上下文
//	fields: 交易欄位
//	idempotencyKey: 外部追蹤號 (可為空)
//
// 回傳:
//
//	*domain.Transaction: 建立後的交易 (含交易號碼)
//	error: 驗證錯誤或 WAL 寫入錯誤
func (m *MutexLedger) CreateTransaction(ctx context.Context, fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := m.book.accounts.Lock(fields.GetLockIDs())
	defer unlock()
	return m.book.create(fields, idempotencyKey)
}

// EditTransaction 編輯交易 (reverse old, apply new)
//
// 參數:
//
//	ctx: 上下文
//	id: 交易 ID
//	fields: 新的交易欄位 (整筆取代)
//
// 回傳:
//
//	*domain.Transaction: 編輯後的交易
//	*domain.Transaction: 編輯前的交易
//	error: domain.ErrNotFound / 驗證錯誤 / domain.ErrLockContention
func (m *MutexLedger) EditTransaction(ctx context.Context, id uuid.UUID, fields domain.TransactionFields) (*domain.Transaction, *domain.Transaction, error) {
	if err := m.book.validateEdit(fields); err != nil {
		return nil, nil, err
	}
	for attempt := 0; attempt < m.maxLockRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		oldIDs, err := m.book.lockIDsOf(id)
		if err != nil {
			return nil, nil, err
		}
		ids := domain.MergeLockIDs(oldIDs, fields.GetLockIDs())

		unlock := m.book.accounts.Lock(ids)
		updated, previous, err := m.book.edit(id, fields, ids)
		unlock()
		if errors.Is(err, errStaleLocks) {
			continue
		}
		return updated, previous, err
	}
	return nil, nil, domain.ErrLockContention
}

// DeleteTransaction 刪除交易並反轉其效果
func (m *MutexLedger) DeleteTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	for attempt := 0; attempt < m.maxLockRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := m.book.lockIDsOf(id)
		if err != nil {
			return nil, err
		}

		unlock := m.book.accounts.Lock(ids)
		deleted, err := m.book.delete(id, ids)
		unlock()
		if errors.Is(err, errStaleLocks) {
			continue
		}
		return deleted, err
	}
	return nil, domain.ErrLockContention
}

// GetTransaction 取得單筆交易
func (m *MutexLedger) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return m.book.get(id)
}

// GetAccountBalance 取得指定帳戶的當前餘額
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//
// 回傳:
//
//	decimal.Decimal: 帳戶餘額
//	error: 查詢錯誤 (如帳戶不存在)
func (m *MutexLedger) GetAccountBalance(ctx context.Context, accountID domain.AccountID) (decimal.Decimal, error) {
	return m.book.accounts.Balance(accountID)
}

// LoadAllAccounts 載入系統所有帳戶資料 (複本)
func (m *MutexLedger) LoadAllAccounts(ctx context.Context) (map[domain.AccountID]*domain.Account, error) {
	unlock := m.book.accounts.LockAll()
	defer unlock()
	return m.book.accountsMap(), nil
}

// Snapshot 鎖定全部帳戶後複製帳戶與交易，不會看到做到一半的操作
func (m *MutexLedger) Snapshot(ctx context.Context) (*usecase.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := m.book.accounts.LockAll()
	defer unlock()
	return m.book.snapshot(), nil
}

// Journal 回傳所有變更紀錄
func (m *MutexLedger) Journal(ctx context.Context) ([]domain.JournalEntry, error) {
	return m.book.journalCopy(), nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
