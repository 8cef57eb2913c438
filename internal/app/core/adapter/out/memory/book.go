package memory

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

// errStaleLocks 鎖定帳戶期間交易的帳戶集合被別人改掉了，呼叫端應重試
var errStaleLocks = errors.New("transaction accounts changed while locking")

// book 是 MutexLedger 與 LMAXLedger 共用的帳本狀態機
//
// 結構:
//
//	accounts: 帳戶與餘額 (每個帳戶各自的鎖)
//	logMu: 保護交易紀錄、journal、序號與去重表
//	wal: Write-Ahead Log 實例 (可為 nil)
//
// 鎖定順序固定為: 帳戶 (依 ID 排序) -> logMu
type book struct {
	accounts *AccountStore

	logMu   sync.RWMutex
	txs     map[uuid.UUID]*domain.Transaction
	order   []uuid.UUID
	journal []domain.JournalEntry
	// 已處理過的 idempotency key
	processedTransactions map[string]uuid.UUID
	txSeq                 uint64
	journalSeq            uint64

	wal *wal.WAL
	now func() time.Time
}

func newBook(accounts map[domain.AccountID]*domain.Account, w *wal.WAL, now func() time.Time) *book {
	if now == nil {
		now = time.Now
	}
	return &book{
		accounts:              NewAccountStore(accounts),
		txs:                   make(map[uuid.UUID]*domain.Transaction),
		processedTransactions: make(map[string]uuid.UUID),
		wal:                   w,
		now:                   now,
	}
}

// validate 檢查欄位不變量與帳戶是否存在，不會變更任何狀態
func (b *book) validate(f domain.TransactionFields) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return b.validateAccounts(f)
}

// validateEdit 同 validate，但交易日期可為零值
func (b *book) validateEdit(f domain.TransactionFields) error {
	if err := f.ValidateEdit(); err != nil {
		return err
	}
	return b.validateAccounts(f)
}

func (b *book) validateAccounts(f domain.TransactionFields) error {
	if !b.accounts.Exists(f.AccountID) {
		return domain.UnknownAccountError("accountId", f.AccountID)
	}
	if to, ok := f.TransferTo(); ok && !b.accounts.Exists(to) {
		return domain.UnknownAccountError("transferToAccountId", to)
	}
	return nil
}

// lockIDsOf 回傳交易目前涉及的帳戶 (樂觀讀取，鎖定後需再確認)
func (b *book) lockIDsOf(id uuid.UUID) ([]domain.AccountID, error) {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	tx, ok := b.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tx.GetLockIDs(), nil
}

// covers locked (已排序) 是否包含 needed 全部
func covers(locked, needed []domain.AccountID) bool {
	for _, id := range needed {
		if _, found := slices.BinarySearch(locked, id); !found {
			return false
		}
	}
	return true
}

// lookupProcessed 依 idempotency key 找已建立的交易
// 回傳 (nil, nil) 代表尚未處理過
func (b *book) lookupProcessed(key string) (*domain.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	id, ok := b.processedTransactions[key]
	if !ok {
		return nil, nil
	}
	if tx, ok := b.txs[id]; ok {
		return tx.Clone(), nil
	}
	return nil, domain.ErrTransactionAlreadyProcessed
}

// appendJournal 寫 WAL 並追加 journal，WAL 失敗時反轉已套用的效果
// 呼叫端需持有 logMu 寫鎖
func (b *book) appendJournal(entry domain.JournalEntry, applied []domain.Effect) error {
	if b.wal != nil {
		if err := b.wal.Write(entry); err != nil {
			_ = b.accounts.ApplyAll(domain.Reverse(applied))
			return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}
	b.journalSeq = entry.Sequence
	b.journal = append(b.journal, entry)
	return nil
}

// create 建立交易，呼叫端需持有 fields.GetLockIDs() 的帳戶鎖
func (b *book) create(fields domain.TransactionFields, idempotencyKey string) (*domain.Transaction, error) {
	if err := b.validate(fields); err != nil {
		return nil, err
	}

	b.logMu.RLock()
	existing, err := b.lookupProcessed(idempotencyKey)
	b.logMu.RUnlock()
	if existing != nil || err != nil {
		return existing, err
	}

	effects := domain.EffectsOf(fields)
	if err := b.accounts.ApplyAll(effects); err != nil {
		return nil, err
	}

	b.logMu.Lock()
	defer b.logMu.Unlock()

	// 同一個 key 可能在上面兩段之間被別人處理掉
	if existing, err := b.lookupProcessed(idempotencyKey); existing != nil || err != nil {
		_ = b.accounts.ApplyAll(domain.Reverse(effects))
		return existing, err
	}

	now := b.now()
	seq := b.txSeq + 1
	tx := &domain.Transaction{
		ID:                uuid.New(),
		Number:            domain.FormatNumber(seq),
		Sequence:          seq,
		TransactionFields: fields,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	entry := domain.JournalEntry{
		Sequence:       b.journalSeq + 1,
		Op:             domain.JournalOpCreate,
		TransactionID:  tx.ID.String(),
		IdempotencyKey: idempotencyKey,
		After:          tx,
		At:             now,
	}
	if err := b.appendJournal(entry, effects); err != nil {
		return nil, err
	}

	b.txSeq = seq
	b.txs[tx.ID] = tx
	b.order = append(b.order, tx.ID)
	if idempotencyKey != "" {
		b.processedTransactions[idempotencyKey] = tx.ID
	}
	return tx.Clone(), nil
}

// edit 反轉舊效果再套用新效果
// locked 為呼叫端持有的帳戶鎖 (已排序)；nil 代表單執行緒呼叫，不檢查
func (b *book) edit(id uuid.UUID, fields domain.TransactionFields, locked []domain.AccountID) (*domain.Transaction, *domain.Transaction, error) {
	if err := b.validateEdit(fields); err != nil {
		return nil, nil, err
	}

	b.logMu.RLock()
	current, ok := b.txs[id]
	b.logMu.RUnlock()
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if locked != nil && !covers(locked, current.GetLockIDs()) {
		return nil, nil, errStaleLocks
	}
	fields = fields.WithDefaultDate(current.TransactionDate)

	// 反轉依據舊紀錄的帳戶，套用依據新欄位的帳戶，兩者可以不同
	effects := domain.EditEffects(current.TransactionFields, fields)
	if err := b.accounts.ApplyAll(effects); err != nil {
		return nil, nil, err
	}

	b.logMu.Lock()
	defer b.logMu.Unlock()

	now := b.now()
	updated := current.Clone()
	updated.TransactionFields = fields
	updated.UpdatedAt = now
	entry := domain.JournalEntry{
		Sequence:      b.journalSeq + 1,
		Op:            domain.JournalOpEdit,
		TransactionID: id.String(),
		Before:        current,
		After:         updated,
		At:            now,
	}
	if err := b.appendJournal(entry, effects); err != nil {
		return nil, nil, err
	}

	b.txs[id] = updated
	return updated.Clone(), current.Clone(), nil
}

// delete 反轉效果並移除紀錄
func (b *book) delete(id uuid.UUID, locked []domain.AccountID) (*domain.Transaction, error) {
	b.logMu.RLock()
	current, ok := b.txs[id]
	b.logMu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if locked != nil && !covers(locked, current.GetLockIDs()) {
		return nil, errStaleLocks
	}

	effects := domain.Reverse(domain.EffectsOf(current.TransactionFields))
	if err := b.accounts.ApplyAll(effects); err != nil {
		return nil, err
	}

	b.logMu.Lock()
	defer b.logMu.Unlock()

	entry := domain.JournalEntry{
		Sequence:      b.journalSeq + 1,
		Op:            domain.JournalOpDelete,
		TransactionID: id.String(),
		Before:        current,
		At:            b.now(),
	}
	if err := b.appendJournal(entry, effects); err != nil {
		return nil, err
	}

	delete(b.txs, id)
	b.order = slices.DeleteFunc(b.order, func(v uuid.UUID) bool { return v == id })
	return current.Clone(), nil
}

func (b *book) get(id uuid.UUID) (*domain.Transaction, error) {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	tx, ok := b.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tx.Clone(), nil
}

// snapshot 呼叫端需持有全部帳戶的鎖 (或在單執行緒環境)
func (b *book) snapshot() *usecase.Snapshot {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	snap := &usecase.Snapshot{
		Accounts:     b.accounts.accountsLocked(),
		Transactions: make([]*domain.Transaction, 0, len(b.order)),
	}
	for _, id := range b.order {
		snap.Transactions = append(snap.Transactions, b.txs[id].Clone())
	}
	return snap
}

// accountsMap 呼叫端需持有全部帳戶的鎖
func (b *book) accountsMap() map[domain.AccountID]*domain.Account {
	accounts := b.accounts.accountsLocked()
	out := make(map[domain.AccountID]*domain.Account, len(accounts))
	for _, acc := range accounts {
		out[acc.ID] = acc
	}
	return out
}

func (b *book) journalCopy() []domain.JournalEntry {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	return slices.Clone(b.journal)
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只在建構時呼叫，無需 Lock (單執行緒)
func (b *book) recoverFromWAL() error {
	if b.wal == nil {
		return nil
	}
	return wal.Replay(b.wal, b.applyRecoverEntry)
}

// applyRecoverEntry 恢復單筆 journal entry 至記憶體 (不寫入 WAL)
func (b *book) applyRecoverEntry(entry domain.JournalEntry) error {
	var err error
	switch entry.Op {
	case domain.JournalOpCreate:
		err = b.replayCreate(entry)
	case domain.JournalOpEdit:
		err = b.replayEdit(entry)
	case domain.JournalOpDelete:
		err = b.replayDelete(entry)
	default:
		err = fmt.Errorf("unknown journal op %q", entry.Op)
	}
	if err != nil {
		return fmt.Errorf("replay journal entry %d: %w", entry.Sequence, err)
	}
	b.journal = append(b.journal, entry)
	b.journalSeq = max(b.journalSeq, entry.Sequence)
	return nil
}

func (b *book) replayCreate(entry domain.JournalEntry) error {
	if entry.After == nil {
		return errors.New("create entry without transaction")
	}
	if _, exists := b.txs[entry.After.ID]; exists {
		return fmt.Errorf("duplicate transaction %s", entry.After.ID)
	}
	if err := b.accounts.ApplyAll(domain.EffectsOf(entry.After.TransactionFields)); err != nil {
		return err
	}
	tx := entry.After.Clone()
	b.txs[tx.ID] = tx
	b.order = append(b.order, tx.ID)
	b.txSeq = max(b.txSeq, tx.Sequence)
	if entry.IdempotencyKey != "" {
		b.processedTransactions[entry.IdempotencyKey] = tx.ID
	}
	return nil
}

func (b *book) replayEdit(entry domain.JournalEntry) error {
	if entry.After == nil {
		return errors.New("edit entry without transaction")
	}
	current, ok := b.txs[entry.After.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := b.accounts.ApplyAll(domain.EditEffects(current.TransactionFields, entry.After.TransactionFields)); err != nil {
		return err
	}
	b.txs[current.ID] = entry.After.Clone()
	return nil
}

func (b *book) replayDelete(entry domain.JournalEntry) error {
	if entry.Before == nil {
		return errors.New("delete entry without transaction")
	}
	current, ok := b.txs[entry.Before.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := b.accounts.ApplyAll(domain.Reverse(domain.EffectsOf(current.TransactionFields))); err != nil {
		return err
	}
	delete(b.txs, current.ID)
	b.order = slices.DeleteFunc(b.order, func(v uuid.UUID) bool { return v == current.ID })
	return nil
}
