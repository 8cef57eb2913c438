package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

var (
	taipei = time.FixedZone("Asia/Taipei", 8*60*60)
	now    = time.Date(2026, 10, 19, 9, 30, 0, 0, taipei)
)

func TestTransactionRequestToFields(t *testing.T) {
	var req TransactionRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": " Bank deposit ",
		"type": "transfer",
		"amount": "400.50",
		"accountId": "drawer",
		"transferToAccountId": "business",
		"transactionDate": "2026-10-18"
	}`), &req))

	f, err := req.ToFields(now, taipei)
	require.NoError(t, err)
	assert.Equal(t, "Bank deposit", f.Name)
	assert.Equal(t, domain.Transfer{To: "business"}, f.Kind)
	assert.True(t, f.Amount.Equal(decimal.RequireFromString("400.5")))
	assert.True(t, f.TransactionDate.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, taipei)))
}

func TestTransactionRequestDefaults(t *testing.T) {
	req := TransactionRequest{Name: "sale", Type: "INCOME", Amount: decimal.NewFromInt(5), AccountID: "drawer"}
	f, err := req.ToFields(now, taipei)
	require.NoError(t, err)
	assert.Equal(t, domain.Income{}, f.Kind)
	assert.True(t, f.TransactionDate.Equal(now))
}

func TestTransactionRequestWithoutDateOnEdit(t *testing.T) {
	req := TransactionRequest{Name: "sale", Type: "income", Amount: decimal.NewFromInt(5), AccountID: "drawer"}
	f, err := req.ToFields(time.Time{}, taipei)
	require.NoError(t, err)
	assert.True(t, f.TransactionDate.IsZero())
}

func TestTransactionRequestRejects(t *testing.T) {
	cases := []struct {
		name  string
		req   TransactionRequest
		field string
	}{
		{"unknown type", TransactionRequest{Type: "refund"}, "type"},
		{"transfer without destination", TransactionRequest{Type: "transfer"}, "transferToAccountId"},
		{"income with destination", TransactionRequest{Type: "income", TransferToAccountID: "business"}, "transferToAccountId"},
		{"bad date", TransactionRequest{Type: "income", TransactionDate: "19/10/2026"}, "transactionDate"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.ToFields(now, taipei)
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestFromTransactionRoundTrip(t *testing.T) {
	tx := &domain.Transaction{
		Number: "TXN-000001",
		TransactionFields: domain.TransactionFields{
			Name:            "Bank deposit",
			Category:        "banking",
			Kind:            domain.Transfer{To: "business"},
			Amount:          decimal.NewFromInt(400),
			AccountID:       "drawer",
			TransactionDate: now,
		},
	}
	f, err := FromTransaction(tx).ToFields(time.Time{}, taipei)
	require.NoError(t, err)
	assert.Equal(t, tx.Kind, f.Kind)
	assert.True(t, f.TransactionDate.Equal(now))
	assert.Equal(t, "banking", f.Category)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-10-19T01:00:00Z", taipei)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, taipei)))

	_, err = ParseDate("yesterday", taipei)
	assert.Error(t, err)
}
