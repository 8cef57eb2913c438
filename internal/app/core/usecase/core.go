package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/query"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/metrics"
)

// 指標與日誌使用的操作名稱
const (
	OpCreate   = "create"
	OpEdit     = "edit"
	OpDelete   = "delete"
	OpGet      = "get"
	OpList     = "list"
	OpAccounts = "accounts"
	OpBalance  = "balance"
	OpJournal  = "journal"
)

// CoreUseCase 是核心業務邏輯層
// 變更交給 Ledger，成功後更新指標並發布事件；查詢則對快照執行 query.Run
type CoreUseCase struct {
	ledger    Ledger
	publisher EventPublisher
	metrics   metrics.Collector
	logger    *logging.Logger
	now       func() time.Time
	location  *time.Location
}

// Option CoreUseCase 選項
type Option func(*CoreUseCase)

// WithPublisher 設定事件發布者 (未設定則不發布)
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) { c.publisher = p }
}

// WithMetrics 設定指標收集器
func WithMetrics(m metrics.Collector) Option {
	return func(c *CoreUseCase) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger 設定 logger
func WithLogger(l *logging.Logger) Option {
	return func(c *CoreUseCase) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock 注入時鐘，決定「今天」與預設交易日期
func WithClock(now func() time.Time) Option {
	return func(c *CoreUseCase) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation 日期區間與「今天」的時區
func WithLocation(loc *time.Location) Option {
	return func(c *CoreUseCase) {
		if loc != nil {
			c.location = loc
		}
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:   ledger,
		metrics:  metrics.NoOpCollector{},
		logger:   logging.L(),
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now 目前時間 (在設定的時區)
func (c *CoreUseCase) Now() time.Time {
	return c.now().In(c.location)
}

// Location 日期解析與統計使用的時區
func (c *CoreUseCase) Location() *time.Location {
	return c.location
}

// IsRejection 錯誤是否屬於呼叫端的問題 (驗證/找不到/鎖競爭)，而非系統故障
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrLockContention) ||
		errors.Is(err, domain.ErrTransactionAlreadyProcessed)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case IsRejection(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

// observe 記錄指標，失敗時依錯誤類型決定日誌等級
func (c *CoreUseCase) observe(op string, start time.Time, err error, fields ...zap.Field) {
	elapsed := time.Since(start)
	c.metrics.RecordOperation(op, resultOf(err), elapsed)
	if err == nil {
		return
	}
	fields = append(fields, zap.String("op", op), zap.Duration("duration", elapsed), zap.Error(err))
	if IsRejection(err) {
		c.logger.Warn("ledger operation rejected", fields...)
		return
	}
	c.logger.Error("ledger operation failed", fields...)
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
//	*domain.Transaction: 建立的交易
//	error: 驗證錯誤或系統錯誤
func (c *CoreUseCase) CreateTransaction(ctx context.Context, fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error) {
	start := time.Now()
	tx, err := c.ledger.CreateTransaction(ctx, fields, idempotencyKey)
	c.observe(OpCreate, start, err, zap.String("account_id", string(fields.AccountID)), zap.Stringer("amount", fields.Amount))
	if err != nil {
		return nil, err
	}
	c.logger.Info("transaction created",
		zap.String("tx_id", tx.ID.String()),
		zap.String("tx_number", tx.Number),
		zap.String("type", string(tx.Type())),
		zap.String("account_id", string(tx.AccountID)),
		zap.Stringer("amount", tx.Amount),
	)
	c.afterCommit(ctx, domain.EventTransactionCreated, tx, nil)
	return tx, nil
}

// EditTransaction 以新欄位整筆取代交易
func (c *CoreUseCase) EditTransaction(ctx context.Context, id uuid.UUID, fields domain.TransactionFields) (*domain.Transaction, error) {
	start := time.Now()
	updated, previous, err := c.ledger.EditTransaction(ctx, id, fields)
	c.observe(OpEdit, start, err, zap.String("tx_id", id.String()))
	if err != nil {
		return nil, err
	}
	c.logger.Info("transaction edited",
		zap.String("tx_id", updated.ID.String()),
		zap.String("tx_number", updated.Number),
		zap.Stringer("amount", updated.Amount),
		zap.Stringer("previous_amount", previous.Amount),
	)
	c.afterCommit(ctx, domain.EventTransactionEdited, updated, previous)
	return updated, nil
}

// DeleteTransaction 刪除交易
func (c *CoreUseCase) DeleteTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	start := time.Now()
	deleted, err := c.ledger.DeleteTransaction(ctx, id)
	c.observe(OpDelete, start, err, zap.String("tx_id", id.String()))
	if err != nil {
		return nil, err
	}
	c.logger.Info("transaction deleted",
		zap.String("tx_id", deleted.ID.String()),
		zap.String("tx_number", deleted.Number),
	)
	c.afterCommit(ctx, domain.EventTransactionDeleted, nil, deleted)
	return deleted, nil
}

// afterCommit 更新受影響帳戶的餘額指標並發布事件
// 操作已經提交，這裡的任何失敗都只記錄，不回傳
func (c *CoreUseCase) afterCommit(ctx context.Context, t domain.EventType, tx, previous *domain.Transaction) {
	var groups [][]domain.AccountID
	if tx != nil {
		groups = append(groups, tx.GetLockIDs())
	}
	if previous != nil {
		groups = append(groups, previous.GetLockIDs())
	}

	balances := make(map[domain.AccountID]decimal.Decimal)
	for _, id := range domain.MergeLockIDs(groups...) {
		balance, err := c.ledger.GetAccountBalance(ctx, id)
		if err != nil {
			c.logger.Warn("read balance after commit", zap.String("account_id", string(id)), zap.Error(err))
			continue
		}
		balances[id] = balance
		c.metrics.RecordBalance(string(id), balance.InexactFloat64())
	}

	if c.publisher == nil {
		return
	}
	event := domain.NewLedgerEvent(t, tx, previous, balances, c.now())
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.metrics.RecordEventPublished(false)
		c.logger.Warn("publish ledger event",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	c.metrics.RecordEventPublished(true)
}

// GetTransaction 取得單筆交易
func (c *CoreUseCase) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	start := time.Now()
	tx, err := c.ledger.GetTransaction(ctx, id)
	c.observe(OpGet, start, err, zap.String("tx_id", id.String()))
	return tx, err
}

// ListTransactions 過濾/排序/分頁交易並附上統計
func (c *CoreUseCase) ListTransactions(ctx context.Context, params query.Params) (*query.Result, error) {
	start := time.Now()
	snap, err := c.ledger.Snapshot(ctx)
	c.observe(OpList, start, err)
	if err != nil {
		return nil, err
	}
	result := query.Run(snap.Accounts, snap.Transactions, params, c.Now())
	c.logger.Debug("transactions listed",
		zap.Int("filtered", result.Summary.FilteredCount),
		zap.Int("page", result.Pagination.Page),
	)
	return &result, nil
}

// ListAccounts 所有帳戶與目前餘額 (依 ID 排序)
func (c *CoreUseCase) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	start := time.Now()
	accounts, err := c.ledger.LoadAllAccounts(ctx)
	c.observe(OpAccounts, start, err)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, acc)
	}
	slices.SortFunc(out, func(a, b *domain.Account) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

// GetAccount 取得單一帳戶
func (c *CoreUseCase) GetAccount(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// GetAccountBalance 取得帳戶餘額
func (c *CoreUseCase) GetAccountBalance(ctx context.Context, accountID domain.AccountID) (decimal.Decimal, error) {
	start := time.Now()
	balance, err := c.ledger.GetAccountBalance(ctx, accountID)
	c.observe(OpBalance, start, err, zap.String("account_id", string(accountID)))
	return balance, err
}

// Journal 只增不減的變更紀錄
func (c *CoreUseCase) Journal(ctx context.Context) ([]domain.JournalEntry, error) {
	start := time.Now()
	entries, err := c.ledger.Journal(ctx)
	c.observe(OpJournal, start, err)
	return entries, err
}
