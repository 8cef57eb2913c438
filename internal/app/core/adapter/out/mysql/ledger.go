package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
)

// MySQLLedger 以 MySQL 為儲存的帳本
// 每個寫入操作都在單一 DB Transaction 內完成，帳戶依 ID 排序後 SELECT ... FOR UPDATE
type MySQLLedger struct {
	db     *gorm.DB
	now    func() time.Time
	logger *logging.Logger
}

// Option MySQLLedger 的可選設定
type Option func(*MySQLLedger)

// WithClock 設定時間來源
func WithClock(now func() time.Time) Option {
	return func(l *MySQLLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger 設定 logger
func WithLogger(logger *logging.Logger) Option {
	return func(l *MySQLLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewMySQLLedger 建立 MySQLLedger
//
// 參數:
//
//	client: *mysql.Client - 已連線的資料庫客戶端
//	opts: 可選設定
//
// 回傳值:
//
//	*MySQLLedger: 帳本實例 (尚未建表，請呼叫 Migrate)
func NewMySQLLedger(client *mysql.Client, opts ...Option) *MySQLLedger {
	l := &MySQLLedger{
		db:     client.DB(),
		now:    time.Now,
		logger: logging.L().Named("mysql_ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Migrate 建表並寫入初始帳戶
// 已存在的帳戶不會被覆寫 (保留餘額)
func (l *MySQLLedger) Migrate(ctx context.Context, accounts map[domain.AccountID]*domain.Account) error {
	db := l.db.WithContext(ctx)
	if err := db.AutoMigrate(&sqlAccount{}, &sqlTransaction{}, &sqlJournalEntry{}, &sqlSequence{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	rows := make([]sqlAccount, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, toAccountRow(acc))
	}
	slices.SortFunc(rows, func(a, b sqlAccount) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if len(rows) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
	}
	seq := sqlSequence{Name: transactionSequence}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	l.logger.Info("mysql ledger migrated", zap.Int("accounts", len(rows)))
	return nil
}

// CreateTransaction 建立交易
// 同一個 idempotencyKey 併發建立時，輸掉 unique index 的那一方會回傳先建立的交易
func (l *MySQLLedger) CreateTransaction(ctx context.Context, fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	var created *domain.Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lookupProcessed(tx, idempotencyKey)
		if existing != nil || err != nil {
			created = existing
			return err
		}

		accounts, err := lockAccounts(tx, fields.GetLockIDs())
		if err != nil {
			return err
		}
		if err := checkAccounts(accounts, fields); err != nil {
			return err
		}

		seq, err := nextSequence(tx)
		if err != nil {
			return err
		}
		now := l.now()
		created = &domain.Transaction{
			ID:                uuid.New(),
			Number:            domain.FormatNumber(seq),
			Sequence:          seq,
			TransactionFields: fields,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		row := toTransactionRow(created)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := applyEffects(tx, accounts, domain.EffectsOf(fields)); err != nil {
			return err
		}
		return appendJournal(tx, domain.JournalEntry{
			Op:             domain.JournalOpCreate,
			TransactionID:  created.ID.String(),
			IdempotencyKey: idempotencyKey,
			After:          created,
			At:             now,
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && idempotencyKey != "" {
		return lookupProcessed(l.db.WithContext(ctx), idempotencyKey)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EditTransaction 反轉舊效果後套用新效果
// 先鎖交易列再鎖帳戶，交易的帳戶集合在鎖定期間不會改變
func (l *MySQLLedger) EditTransaction(ctx context.Context, id uuid.UUID, fields domain.TransactionFields) (*domain.Transaction, *domain.Transaction, error) {
	if err := fields.ValidateEdit(); err != nil {
		return nil, nil, err
	}

	var updated, previous *domain.Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		fields = fields.WithDefaultDate(current.TransactionDate)
		accounts, err := lockAccounts(tx, domain.MergeLockIDs(current.GetLockIDs(), fields.GetLockIDs()))
		if err != nil {
			return err
		}
		if err := checkAccounts(accounts, fields); err != nil {
			return err
		}

		now := l.now()
		updated = current.Clone()
		updated.TransactionFields = fields
		updated.UpdatedAt = now
		if err := tx.Model(&sqlTransaction{}).Where("id = ?", id.String()).Updates(editColumns(updated)).Error; err != nil {
			return err
		}
		if err := applyEffects(tx, accounts, domain.EditEffects(current.TransactionFields, fields)); err != nil {
			return err
		}
		previous = current
		return appendJournal(tx, domain.JournalEntry{
			Op:            domain.JournalOpEdit,
			TransactionID: id.String(),
			Before:        current,
			After:         updated,
			At:            now,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, previous, nil
}

// DeleteTransaction 反轉效果並刪除交易列
func (l *MySQLLedger) DeleteTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var deleted *domain.Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		accounts, err := lockAccounts(tx, current.GetLockIDs())
		if err != nil {
			return err
		}
		if err := tx.Delete(&sqlTransaction{}, "id = ?", id.String()).Error; err != nil {
			return err
		}
		if err := applyEffects(tx, accounts, domain.Reverse(domain.EffectsOf(current.TransactionFields))); err != nil {
			return err
		}
		deleted = current
		return appendJournal(tx, domain.JournalEntry{
			Op:            domain.JournalOpDelete,
			TransactionID: id.String(),
			Before:        current,
			At:            l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (l *MySQLLedger) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var row sqlTransaction
	err := l.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSelectTransactionFailed, err)
	}
	return row.toDomain()
}

func (l *MySQLLedger) GetAccountBalance(ctx context.Context, accountID domain.AccountID) (decimal.Decimal, error) {
	var row sqlAccount
	err := l.db.WithContext(ctx).Where("id = ?", string(accountID)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Balance, nil
}

func (l *MySQLLedger) LoadAllAccounts(ctx context.Context) (map[domain.AccountID]*domain.Account, error) {
	var rows []sqlAccount
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make(map[domain.AccountID]*domain.Account, len(rows))
	for _, row := range rows {
		accounts[domain.AccountID(row.ID)] = row.toDomain()
	}
	return accounts, nil
}

// Snapshot 在同一個 REPEATABLE READ 唯讀事務內讀取帳戶與交易
func (l *MySQLLedger) Snapshot(ctx context.Context) (*usecase.Snapshot, error) {
	snap := &usecase.Snapshot{}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var accounts []sqlAccount
		if err := tx.Order("id").Find(&accounts).Error; err != nil {
			return err
		}
		var txs []sqlTransaction
		if err := tx.Order("sequence").Find(&txs).Error; err != nil {
			return err
		}
		snap.Accounts = make([]*domain.Account, 0, len(accounts))
		for _, row := range accounts {
			snap.Accounts = append(snap.Accounts, row.toDomain())
		}
		snap.Transactions = make([]*domain.Transaction, 0, len(txs))
		for _, row := range txs {
			t, err := row.toDomain()
			if err != nil {
				return err
			}
			snap.Transactions = append(snap.Transactions, t)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (l *MySQLLedger) Journal(ctx context.Context) ([]domain.JournalEntry, error) {
	var rows []sqlJournalEntry
	if err := l.db.WithContext(ctx).Order("sequence").Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.JournalEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// lookupProcessed 以 create journal 上的 idempotency key 找回先前建立的交易
// 交易已被刪除時回傳 ErrTransactionAlreadyProcessed
func lookupProcessed(db *gorm.DB, key string) (*domain.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	var entry sqlJournalEntry
	err := db.Where("idempotency_key = ?", key).Limit(1).Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.Sequence == 0 {
		return nil, nil
	}
	var row sqlTransaction
	err = db.Where("id = ?", entry.TransactionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTransactionAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// lockTransaction SELECT ... FOR UPDATE 鎖住交易列
func lockTransaction(tx *gorm.DB, id uuid.UUID) (*domain.Transaction, error) {
	var row sqlTransaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSelectTransactionFailed, err)
	}
	return row.toDomain()
}

// lockAccounts 依 ID 排序鎖定帳戶，不存在的帳戶不在回傳的 map 中
func lockAccounts(tx *gorm.DB, ids []domain.AccountID) (map[domain.AccountID]*sqlAccount, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	var rows []sqlAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", keys).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	accounts := make(map[domain.AccountID]*sqlAccount, len(rows))
	for i := range rows {
		accounts[domain.AccountID(rows[i].ID)] = &rows[i]
	}
	return accounts, nil
}

// checkAccounts 新欄位參照的帳戶都必須存在
func checkAccounts(accounts map[domain.AccountID]*sqlAccount, fields domain.TransactionFields) error {
	if _, ok := accounts[fields.AccountID]; !ok {
		return domain.UnknownAccountError("accountId", fields.AccountID)
	}
	if to, ok := fields.TransferTo(); ok {
		if _, ok := accounts[to]; !ok {
			return domain.UnknownAccountError("transferToAccountId", to)
		}
	}
	return nil
}

// applyEffects 將效果依帳戶加總後寫回餘額
func applyEffects(tx *gorm.DB, accounts map[domain.AccountID]*sqlAccount, effects []domain.Effect) error {
	net := domain.NetByAccount(effects)
	ids := make([]domain.AccountID, 0, len(net))
	for id := range net {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		acc, ok := accounts[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		acc.Balance = acc.Balance.Add(net[id])
		err := tx.Model(&sqlAccount{}).Where("id = ?", acc.ID).Update("balance", acc.Balance).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// nextSequence 鎖定 ledger_sequences 列並遞增，回傳新的交易序號
func nextSequence(tx *gorm.DB) (uint64, error) {
	var seq sqlSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", transactionSequence).First(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("select sequence: %w", err)
	}
	seq.Value++
	if err := tx.Model(&sqlSequence{}).Where("name = ?", transactionSequence).Update("value", seq.Value).Error; err != nil {
		return 0, fmt.Errorf("update sequence: %w", err)
	}
	return seq.Value, nil
}

// editColumns 編輯時會改寫的欄位 (號碼、序號、建立時間不變)
func editColumns(t *domain.Transaction) map[string]any {
	row := toTransactionRow(t)
	return map[string]any{
		"name":                   row.Name,
		"description":            row.Description,
		"category":               row.Category,
		"type":                   row.Type,
		"amount":                 row.Amount,
		"account_id":             row.AccountID,
		"transfer_to_account_id": row.TransferToAccountID,
		"transaction_date":       row.TransactionDate,
		"updated_at":             row.UpdatedAt,
	}
}

func appendJournal(tx *gorm.DB, entry domain.JournalEntry) error {
	row, err := toJournalRow(entry)
	if err != nil {
		return err
	}
	return tx.Create(&row).Error
}
