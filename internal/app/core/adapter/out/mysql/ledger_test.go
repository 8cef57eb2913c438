package mysql

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
)

// newTestLedger 需要真實的 MySQL，沒有設定 LEDGER_MYSQL_TEST_HOST 時跳過
func newTestLedger(t *testing.T) *MySQLLedger {
	t.Helper()
	host := os.Getenv("LEDGER_MYSQL_TEST_HOST")
	if host == "" {
		t.Skip("LEDGER_MYSQL_TEST_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("LEDGER_MYSQL_TEST_PORT"))
	client, err := mysql.NewClient(mysql.Config{
		Host:       host,
		Port:       port,
		User:       envOr("LEDGER_MYSQL_TEST_USER", "root"),
		Password:   os.Getenv("LEDGER_MYSQL_TEST_PASSWORD"),
		DBName:     envOr("LEDGER_MYSQL_TEST_DB", "cash_ledger_test"),
		MaxRetries: 1,
		LogLevel:   "silent",
	}, logging.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ledger := NewMySQLLedger(client, WithLogger(logging.NewNoOpLogger()))
	require.NoError(t, ledger.Migrate(context.Background(), map[domain.AccountID]*domain.Account{
		"drawer":   domain.NewAccount("drawer", "Cash Drawer", domain.AccountTypeDrawer),
		"business": domain.NewAccount("business", "Business Account", domain.AccountTypeBusiness),
	}))
	return ledger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func balanceOf(t *testing.T, l *MySQLLedger, id domain.AccountID) decimal.Decimal {
	t.Helper()
	b, err := l.GetAccountBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestMySQLLedgerLifecycle(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	drawer0 := balanceOf(t, l, "drawer")
	business0 := balanceOf(t, l, "business")

	fields := domain.TransactionFields{
		Name:            "Deposit",
		Kind:            domain.Transfer{To: "business"},
		Amount:          decimal.NewFromInt(500),
		AccountID:       "drawer",
		TransactionDate: time.Now(),
	}
	key := "it-" + uuid.NewString()
	tx, err := l.CreateTransaction(ctx, fields, key)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, l, "drawer").Equal(drawer0.Sub(decimal.NewFromInt(500))))
	assert.True(t, balanceOf(t, l, "business").Equal(business0.Add(decimal.NewFromInt(500))))

	again, err := l.CreateTransaction(ctx, fields, key)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)

	edit := fields
	edit.Kind = domain.Income{}
	edit.TransactionDate = time.Time{}
	updated, previous, err := l.EditTransaction(ctx, tx.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, tx.Number, updated.Number)
	assert.WithinDuration(t, previous.TransactionDate, updated.TransactionDate, 0)
	assert.Equal(t, domain.TransactionTypeTransfer, previous.Type())
	assert.True(t, balanceOf(t, l, "drawer").Equal(drawer0.Add(decimal.NewFromInt(500))))
	assert.True(t, balanceOf(t, l, "business").Equal(business0))

	_, err = l.DeleteTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, l, "drawer").Equal(drawer0))

	_, err = l.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.CreateTransaction(ctx, fields, key)
	assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
}

func TestMySQLLedgerRejectsUnknownAccount(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.CreateTransaction(context.Background(), domain.TransactionFields{
		Name:            "Ghost",
		Kind:            domain.Transfer{To: "vault"},
		Amount:          decimal.NewFromInt(1),
		AccountID:       "drawer",
		TransactionDate: time.Now(),
	}, "")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
