package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

// ErrLedgerStopped 核心引擎已停止，不再接受請求
var ErrLedgerStopped = errors.New("ledger stopped")

// DefaultRequestBuffer 輸送帶的緩衝大小
const DefaultRequestBuffer = 1000

// ledgerRequest 請求包裝channel，讓呼叫端可以等待結果
type ledgerRequest struct {
	fn     func(b *book) error
	Result chan error // 讓呼叫端等這個 channel
}

// LMAXLedger 單一 goroutine 擁有全部狀態，所有操作 (包含讀取) 都排進輸送帶依序執行
// 因為只有一個 writer，不需要任何帳戶鎖
type LMAXLedger struct {
	book *book
	// 輸送帶 負責接收請求
	requestChan chan *ledgerRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	startOnce   sync.Once
	stopped     chan struct{}
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，需呼叫 Start 後才會處理請求
//
// 參數:
//
//	accounts: 初始帳戶資料 Map
//	wal: Write-Ahead Log 實例 (nil 代表不持久化)
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 初始化錯誤
func NewLMAXLedger(accounts map[domain.AccountID]*domain.Account, wal *wal.WAL, opts ...Option) (*LMAXLedger, error) {
	o := buildOptions(opts)
	ledger := &LMAXLedger{
		book:        newBook(accounts, wal, o.now),
		requestChan: make(chan *ledgerRequest, DefaultRequestBuffer),
		stopped:     make(chan struct{}),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &ledgerRequest{
					Result: make(chan error, 1),
				}
			},
		},
	}

	// 在啟動前先恢復資料
	if err := ledger.book.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Start 啟動核心引擎 (非同步)，ctx 結束時把剩下的請求處理完再停止
func (l *LMAXLedger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// Done 核心引擎停止後關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.stopped
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requestChan:
			l.process(req)
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.requestChan:
			l.process(req)
		default:
			return
		}
	}
}

func (l *LMAXLedger) process(req *ledgerRequest) {
	req.Result <- req.fn(l.book)
}

// submit 放入輸送帶並等待結果
// PostXxx(等待) -> Channel -> Run Loop (核心) -> WAL -> State Update -> Result Channel -> PostXxx(收到結果)
func (l *LMAXLedger) submit(ctx context.Context, fn func(b *book) error) error {
	req := l.requestPool.Get().(*ledgerRequest)
	req.fn = fn
	// 清空 Channel (理論上應該是空的)
	select {
	case <-req.Result:
	default:
	}

	select {
	case l.requestChan <- req:
	case <-ctx.Done():
		l.requestPool.Put(req)
		return ctx.Err()
	case <-l.stopped:
		l.requestPool.Put(req)
		return ErrLedgerStopped
	}

	select {
	case err := <-req.Result:
		req.fn = nil
		l.requestPool.Put(req)
		return err
	case <-l.stopped:
		// 引擎停止前可能剛好處理完
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrLedgerStopped
		}
	}
}

func (l *LMAXLedger) CreateTransaction(ctx context.Context, fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error) {
	var created *domain.Transaction
	err := l.submit(ctx, func(b *book) error {
		var err error
		created, err = b.create(fields, idempotencyKey)
		return err
	})
	return created, err
}

func (l *LMAXLedger) EditTransaction(ctx context.Context, id uuid.UUID, fields domain.TransactionFields) (*domain.Transaction, *domain.Transaction, error) {
	var updated, previous *domain.Transaction
	err := l.submit(ctx, func(b *book) error {
		var err error
		updated, previous, err = b.edit(id, fields, nil)
		return err
	})
	return updated, previous, err
}

func (l *LMAXLedger) DeleteTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var deleted *domain.Transaction
	err := l.submit(ctx, func(b *book) error {
		var err error
		deleted, err = b.delete(id, nil)
		return err
	})
	return deleted, err
}

func (l *LMAXLedger) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := l.submit(ctx, func(b *book) error {
		var err error
		tx, err = b.get(id)
		return err
	})
	return tx, err
}

// GetAccountBalance 取得指定帳戶的當前餘額
func (l *LMAXLedger) GetAccountBalance(ctx context.Context, accountID domain.AccountID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.submit(ctx, func(b *book) error {
		var err error
		balance, err = b.accounts.balanceLocked(accountID)
		return err
	})
	return balance, err
}

// LoadAllAccounts implements usecase.Ledger.
func (l *LMAXLedger) LoadAllAccounts(ctx context.Context) (map[domain.AccountID]*domain.Account, error) {
	var accounts map[domain.AccountID]*domain.Account
	err := l.submit(ctx, func(b *book) error {
		accounts = b.accountsMap()
		return nil
	})
	return accounts, err
}

func (l *LMAXLedger) Snapshot(ctx context.Context) (*usecase.Snapshot, error) {
	var snap *usecase.Snapshot
	err := l.submit(ctx, func(b *book) error {
		snap = b.snapshot()
		return nil
	})
	return snap, err
}

func (l *LMAXLedger) Journal(ctx context.Context) ([]domain.JournalEntry, error) {
	var journal []domain.JournalEntry
	err := l.submit(ctx, func(b *book) error {
		journal = b.journalCopy()
		return nil
	})
	return journal, err
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
