package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)"`
	Name      string          `gorm:"type:varchar(200);not null"`
	Type      string          `gorm:"type:varchar(32);not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UpdatedAt time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表 (只存活著的交易)
type sqlTransaction struct {
	ID                  string          `gorm:"primaryKey;type:char(36)"`
	Number              string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Sequence            uint64          `gorm:"uniqueIndex;not null"`
	Name                string          `gorm:"type:varchar(200);not null"`
	Description         string          `gorm:"type:varchar(200)"`
	Category            string          `gorm:"type:varchar(100);index"`
	Type                string          `gorm:"type:varchar(16);not null"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	AccountID           string          `gorm:"type:varchar(64);index;not null"`
	TransferToAccountID *string         `gorm:"type:varchar(64);index"`
	TransactionDate     time.Time       `gorm:"index;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// sqlJournalEntry 對應資料庫的 journal_entries 表 (只增不減)
// IdempotencyKey 只有 create 會帶，NULL 不受 unique index 限制
type sqlJournalEntry struct {
	Sequence       uint64  `gorm:"primaryKey;autoIncrement"`
	Op             string  `gorm:"type:varchar(16);not null"`
	TransactionID  string  `gorm:"type:char(36);index;not null"`
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex"`
	Before         []byte  `gorm:"type:json"`
	After          []byte  `gorm:"type:json"`
	At             time.Time
}

func (*sqlJournalEntry) TableName() string {
	return "journal_entries"
}

// sqlSequence 對應 ledger_sequences 表，用來分配永不重用的交易號碼
type sqlSequence struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value uint64 `gorm:"not null"`
}

func (*sqlSequence) TableName() string {
	return "ledger_sequences"
}

const transactionSequence = "transaction"

func toAccountRow(acc *domain.Account) sqlAccount {
	return sqlAccount{
		ID:      string(acc.ID),
		Name:    acc.Name,
		Type:    string(acc.Type),
		Balance: acc.Balance,
	}
}

func (r sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:      domain.AccountID(r.ID),
		Name:    r.Name,
		Type:    domain.AccountType(r.Type),
		Balance: r.Balance,
	}
}

func toTransactionRow(tx *domain.Transaction) sqlTransaction {
	row := sqlTransaction{
		ID:              tx.ID.String(),
		Number:          tx.Number,
		Sequence:        tx.Sequence,
		Name:            tx.Name,
		Description:     tx.Description,
		Category:        tx.Category,
		Type:            string(tx.Type()),
		Amount:          tx.Amount,
		AccountID:       string(tx.AccountID),
		TransactionDate: tx.TransactionDate.UTC(),
		CreatedAt:       tx.CreatedAt.UTC(),
		UpdatedAt:       tx.UpdatedAt.UTC(),
	}
	if to, ok := tx.TransferTo(); ok {
		s := string(to)
		row.TransferToAccountID = &s
	}
	return row
}

func (r sqlTransaction) toDomain() (*domain.Transaction, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("transaction %q: %w", r.ID, err)
	}
	var to domain.AccountID
	if r.TransferToAccountID != nil {
		to = domain.AccountID(*r.TransferToAccountID)
	}
	kind, err := domain.KindOf(domain.TransactionType(r.Type), to)
	if err != nil {
		return nil, fmt.Errorf("transaction %q: %w", r.ID, err)
	}
	return &domain.Transaction{
		ID:       id,
		Number:   r.Number,
		Sequence: r.Sequence,
		TransactionFields: domain.TransactionFields{
			Name:            r.Name,
			Description:     r.Description,
			Category:        r.Category,
			Kind:            kind,
			Amount:          r.Amount,
			AccountID:       domain.AccountID(r.AccountID),
			TransactionDate: r.TransactionDate,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func toJournalRow(entry domain.JournalEntry) (sqlJournalEntry, error) {
	row := sqlJournalEntry{
		Sequence:      entry.Sequence,
		Op:            string(entry.Op),
		TransactionID: entry.TransactionID,
		At:            entry.At.UTC(),
	}
	if entry.IdempotencyKey != "" {
		key := entry.IdempotencyKey
		row.IdempotencyKey = &key
	}
	var err error
	if entry.Before != nil {
		if row.Before, err = json.Marshal(entry.Before); err != nil {
			return row, err
		}
	}
	if entry.After != nil {
		if row.After, err = json.Marshal(entry.After); err != nil {
			return row, err
		}
	}
	return row, nil
}

func (r sqlJournalEntry) toDomain() (domain.JournalEntry, error) {
	entry := domain.JournalEntry{
		Sequence:      r.Sequence,
		Op:            domain.JournalOp(r.Op),
		TransactionID: r.TransactionID,
		At:            r.At,
	}
	if r.IdempotencyKey != nil {
		entry.IdempotencyKey = *r.IdempotencyKey
	}
	if len(r.Before) > 0 {
		entry.Before = &domain.Transaction{}
		if err := json.Unmarshal(r.Before, entry.Before); err != nil {
			return entry, fmt.Errorf("journal %d before: %w", r.Sequence, err)
		}
	}
	if len(r.After) > 0 {
		entry.After = &domain.Transaction{}
		if err := json.Unmarshal(r.After, entry.After); err != nil {
			return entry, fmt.Errorf("journal %d after: %w", r.Sequence, err)
		}
	}
	return entry, nil
}
