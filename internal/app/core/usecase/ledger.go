package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
// 每個 Create/Edit/Delete 對呼叫端而言都是單一原子操作：要嘛全部套用，要嘛完全沒變
type Ledger interface {
	// CreateTransaction 驗證、分配交易號碼、套用效果並寫入交易紀錄
	// idempotencyKey 非空時，同一個 key 只會建立一次
	CreateTransaction(ctx context.Context, fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error)
	// EditTransaction 反轉舊效果後套用新欄位的效果，回傳 (新交易, 舊交易)
	// fields.TransactionDate 為零值時沿用舊紀錄的日期
	EditTransaction(ctx context.Context, id uuid.UUID, fields domain.TransactionFields) (*domain.Transaction, *domain.Transaction, error)
	// DeleteTransaction 反轉效果並移除紀錄，回傳被刪除的交易
	DeleteTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetTransaction 取得單筆交易
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetAccountBalance 取得帳戶餘額
	GetAccountBalance(ctx context.Context, accountID domain.AccountID) (decimal.Decimal, error)
	// LoadAllAccounts 載入所有帳戶
	LoadAllAccounts(ctx context.Context) (map[domain.AccountID]*domain.Account, error)
	// Snapshot 一致性快照：帳戶與交易來自同一個時間點
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Journal 只增不減的變更紀錄
	Journal(ctx context.Context) ([]domain.JournalEntry, error)
}

// Snapshot 帳本在某一時間點的一致性複本
type Snapshot struct {
	// Accounts 依 ID 排序
	Accounts []*domain.Account
	// Transactions 依建立順序排列
	Transactions []*domain.Transaction
}

// EventPublisher 交易提交後發布事件
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}
