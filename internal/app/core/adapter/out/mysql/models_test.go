package mysql

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

func sampleTransfer() *domain.Transaction {
	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	return &domain.Transaction{
		ID:       uuid.New(),
		Number:   domain.FormatNumber(7),
		Sequence: 7,
		TransactionFields: domain.TransactionFields{
			Name:            "Deposit",
			Category:        "banking",
			Kind:            domain.Transfer{To: "business"},
			Amount:          decimal.RequireFromString("250.50"),
			AccountID:       "drawer",
			TransactionDate: at,
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestTransactionRowRoundTrip(t *testing.T) {
	tx := sampleTransfer()
	row := toTransactionRow(tx)

	assert.Equal(t, "transfer", row.Type)
	assert.Equal(t, "TXN-000007", row.Number)
	require.NotNil(t, row.TransferToAccountID)
	assert.Equal(t, "business", *row.TransferToAccountID)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, tx.ID, back.ID)
	assert.Equal(t, domain.Transfer{To: "business"}, back.Kind)
	assert.True(t, tx.Amount.Equal(back.Amount))
	assert.True(t, tx.TransactionDate.Equal(back.TransactionDate))
}

func TestTransactionRowWithoutTransferTarget(t *testing.T) {
	tx := sampleTransfer()
	tx.Kind = domain.Expense{}
	row := toTransactionRow(tx)
	assert.Nil(t, row.TransferToAccountID)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, domain.Expense{}, back.Kind)
}

func TestTransactionRowRejectsCorruptRows(t *testing.T) {
	row := toTransactionRow(sampleTransfer())
	row.TransferToAccountID = nil
	_, err := row.toDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)

	row = toTransactionRow(sampleTransfer())
	row.ID = "not-a-uuid"
	_, err = row.toDomain()
	assert.Error(t, err)
}

func TestJournalRowRoundTrip(t *testing.T) {
	before := sampleTransfer()
	after := before.Clone()
	after.Amount = decimal.NewFromInt(100)

	entry := domain.JournalEntry{
		Sequence:      3,
		Op:            domain.JournalOpEdit,
		TransactionID: before.ID.String(),
		Before:        before,
		After:         after,
		At:            before.CreatedAt,
	}
	row, err := toJournalRow(entry)
	require.NoError(t, err)
	assert.Nil(t, row.IdempotencyKey)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, domain.JournalOpEdit, back.Op)
	require.NotNil(t, back.Before)
	require.NotNil(t, back.After)
	assert.True(t, back.After.Amount.Equal(decimal.NewFromInt(100)))

	// 折疊結果: 反轉 250.50 再套用 100
	net := domain.FoldBalances([]domain.JournalEntry{back})
	assert.True(t, net["drawer"].Equal(decimal.RequireFromString("150.50")))
	assert.True(t, net["business"].Equal(decimal.RequireFromString("-150.50")))
}

func TestJournalRowKeepsIdempotencyKey(t *testing.T) {
	tx := sampleTransfer()
	row, err := toJournalRow(domain.JournalEntry{
		Op:             domain.JournalOpCreate,
		TransactionID:  tx.ID.String(),
		IdempotencyKey: "order-42",
		After:          tx,
	})
	require.NoError(t, err)
	require.NotNil(t, row.IdempotencyKey)
	assert.Nil(t, row.Before)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, "order-42", back.IdempotencyKey)
	assert.Nil(t, back.Before)
}

func TestEditColumnsKeepIdentity(t *testing.T) {
	cols := editColumns(sampleTransfer())
	assert.NotContains(t, cols, "id")
	assert.NotContains(t, cols, "number")
	assert.NotContains(t, cols, "sequence")
	assert.NotContains(t, cols, "created_at")
	assert.Equal(t, "transfer", cols["type"])
}

func TestAccountRow(t *testing.T) {
	acc := domain.NewAccount("drawer", "Cash Drawer", domain.AccountTypeDrawer)
	acc.Apply(decimal.NewFromInt(-20))
	back := toAccountRow(acc).toDomain()
	assert.Equal(t, acc.ID, back.ID)
	assert.Equal(t, acc.Type, back.Type)
	assert.True(t, back.Balance.Equal(decimal.NewFromInt(-20)))
}
