package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type engine struct {
	name  string
	build func(t *testing.T, w *wal.WAL) usecase.Ledger
}

func engines() []engine {
	clock := WithClock(func() time.Time { return testNow })
	return []engine{
		{
			name: "mutex",
			build: func(t *testing.T, w *wal.WAL) usecase.Ledger {
				l, err := NewMutexLedger(seedAccounts(), w, clock)
				require.NoError(t, err)
				return l
			},
		},
		{
			name: "lmax",
			build: func(t *testing.T, w *wal.WAL) usecase.Ledger {
				l, err := NewLMAXLedger(seedAccounts(), w, clock)
				require.NoError(t, err)
				ctx, cancel := context.WithCancel(context.Background())
				t.Cleanup(func() {
					cancel()
					<-l.Done()
				})
				l.Start(ctx)
				return l
			},
		},
	}
}

func income(amount int64, account domain.AccountID) domain.TransactionFields {
	return domain.TransactionFields{
		Name:            "sale",
		Kind:            domain.Income{},
		Amount:          dec(amount),
		AccountID:       account,
		TransactionDate: testNow,
	}
}

func expense(amount int64, account domain.AccountID) domain.TransactionFields {
	f := income(amount, account)
	f.Name = "supplies"
	f.Kind = domain.Expense{}
	return f
}

func transfer(amount int64, from, to domain.AccountID) domain.TransactionFields {
	f := income(amount, from)
	f.Name = "deposit to bank"
	f.Kind = domain.Transfer{To: to}
	return f
}

func balanceOf(t *testing.T, l usecase.Ledger, id domain.AccountID) decimal.Decimal {
	t.Helper()
	b, err := l.GetAccountBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func assertBalance(t *testing.T, l usecase.Ledger, id domain.AccountID, want int64) {
	t.Helper()
	got := balanceOf(t, l, id)
	assert.Truef(t, got.Equal(dec(want)), "%s: want %d, got %s", id, want, got)
}

func totalBalance(t *testing.T, l usecase.Ledger) decimal.Decimal {
	t.Helper()
	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	total := decimal.Zero
	for _, a := range snap.Accounts {
		total = total.Add(a.Balance)
	}
	return total
}

func TestLedgerScenario(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)

			t1, err := l.CreateTransaction(ctx, income(1000, "drawer"), "")
			require.NoError(t, err)
			assertBalance(t, l, "drawer", 1000)

			t2, err := l.CreateTransaction(ctx, transfer(400, "drawer", "business"), "")
			require.NoError(t, err)
			assertBalance(t, l, "drawer", 600)
			assertBalance(t, l, "business", 400)

			edited := t1.TransactionFields
			edited.Amount = dec(1500)
			updated, previous, err := l.EditTransaction(ctx, t1.ID, edited)
			require.NoError(t, err)
			assert.True(t, previous.Amount.Equal(dec(1000)))
			assert.True(t, updated.Amount.Equal(dec(1500)))
			assert.Equal(t, t1.Number, updated.Number)
			assertBalance(t, l, "drawer", 1100)

			_, err = l.DeleteTransaction(ctx, t2.ID)
			require.NoError(t, err)
			assertBalance(t, l, "drawer", 1500)
			assertBalance(t, l, "business", 0)

			snap, err := l.Snapshot(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Transactions, 1)
			assert.Equal(t, t1.ID, snap.Transactions[0].ID)
		})
	}
}

func TestLedgerConservation(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)

			_, err := l.CreateTransaction(ctx, income(500, "drawer"), "")
			require.NoError(t, err)
			assert.True(t, totalBalance(t, l).Equal(dec(500)))

			before := totalBalance(t, l)
			_, err = l.CreateTransaction(ctx, transfer(300, "drawer", "cash_in_hand"), "")
			require.NoError(t, err)
			assert.True(t, totalBalance(t, l).Equal(before), "transfer must not change the total")
			assertBalance(t, l, "drawer", 200)
			assertBalance(t, l, "cash_in_hand", 300)

			_, err = l.CreateTransaction(ctx, expense(120, "cash_in_hand"), "")
			require.NoError(t, err)
			assert.True(t, totalBalance(t, l).Equal(dec(380)))
		})
	}
}

func TestLedgerRejectsInvalidWithoutMutation(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)
			seed, err := l.CreateTransaction(ctx, income(100, "drawer"), "")
			require.NoError(t, err)

			invalid := []domain.TransactionFields{
				income(0, "drawer"),
				income(10, "vault"),
				transfer(10, "drawer", "drawer"),
				transfer(10, "drawer", "vault"),
			}
			for i, f := range invalid {
				_, err := l.CreateTransaction(ctx, f, "")
				assert.ErrorIsf(t, err, domain.ErrValidation, "case %d", i)

				_, _, err = l.EditTransaction(ctx, seed.ID, f)
				assert.ErrorIsf(t, err, domain.ErrValidation, "edit case %d", i)
			}

			_, err = l.CreateTransaction(ctx, transfer(10, "drawer", "vault"), "")
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)

			assertBalance(t, l, "drawer", 100)
			assertBalance(t, l, "business", 0)
			journal, err := l.Journal(ctx)
			require.NoError(t, err)
			assert.Len(t, journal, 1)
		})
	}
}

func TestLedgerNotFound(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)
			missing := uuid.New()

			_, _, err := l.EditTransaction(ctx, missing, income(1, "drawer"))
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = l.DeleteTransaction(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = l.GetTransaction(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = l.GetAccountBalance(ctx, "vault")
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)

			created, err := l.CreateTransaction(ctx, income(1, "drawer"), "")
			require.NoError(t, err)
			_, err = l.DeleteTransaction(ctx, created.ID)
			require.NoError(t, err)
			_, err = l.DeleteTransaction(ctx, created.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

// 編輯 T -> T' 的結果要等同刪除 T 再建立 T'
func TestLedgerEditEqualsDeleteThenCreate(t *testing.T) {
	cases := []struct {
		name     string
		original domain.TransactionFields
		updated  domain.TransactionFields
	}{
		{"amount change", income(1000, "drawer"), income(1500, "drawer")},
		{"income to expense", income(1000, "drawer"), expense(200, "drawer")},
		{"move source account", expense(50, "drawer"), expense(50, "cash_in_hand")},
		{"transfer destination change", transfer(400, "drawer", "business"), transfer(400, "drawer", "cash_in_hand")},
		{"transfer to income elsewhere", transfer(400, "drawer", "business"), income(75, "business")},
	}

	for _, e := range engines() {
		e := e
		for _, tc := range cases {
			tc := tc
			t.Run(e.name+"/"+tc.name, func(t *testing.T) {
				ctx := context.Background()

				edited := e.build(t, nil)
				_, err := edited.CreateTransaction(ctx, income(10000, "cash_in_hand"), "")
				require.NoError(t, err)
				tx, err := edited.CreateTransaction(ctx, tc.original, "")
				require.NoError(t, err)
				_, _, err = edited.EditTransaction(ctx, tx.ID, tc.updated)
				require.NoError(t, err)

				fresh := e.build(t, nil)
				_, err = fresh.CreateTransaction(ctx, income(10000, "cash_in_hand"), "")
				require.NoError(t, err)
				tx2, err := fresh.CreateTransaction(ctx, tc.original, "")
				require.NoError(t, err)
				_, err = fresh.DeleteTransaction(ctx, tx2.ID)
				require.NoError(t, err)
				_, err = fresh.CreateTransaction(ctx, tc.updated, "")
				require.NoError(t, err)

				for _, id := range []domain.AccountID{"drawer", "cash_in_hand", "business"} {
					assert.Truef(t, balanceOf(t, edited, id).Equal(balanceOf(t, fresh, id)), "account %s", id)
				}
			})
		}
	}
}

func TestLedgerEditWithoutDateKeepsStoredDate(t *testing.T) {
	stored := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)
			original := income(100, "drawer")
			original.TransactionDate = stored
			tx, err := l.CreateTransaction(ctx, original, "")
			require.NoError(t, err)

			change := income(250, "drawer")
			change.TransactionDate = time.Time{}
			updated, previous, err := l.EditTransaction(ctx, tx.ID, change)
			require.NoError(t, err)
			assert.True(t, updated.TransactionDate.Equal(stored))
			assert.True(t, previous.TransactionDate.Equal(stored))
			assert.True(t, updated.Amount.Equal(dec(250)))

			got, err := l.GetTransaction(ctx, tx.ID)
			require.NoError(t, err)
			assert.True(t, got.TransactionDate.Equal(stored))
			assertBalance(t, l, "drawer", 250)
		})
	}
}

func TestLedgerReversalRestoresBalances(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)
			_, err := l.CreateTransaction(ctx, income(999, "business"), "")
			require.NoError(t, err)

			before, err := l.Snapshot(ctx)
			require.NoError(t, err)

			tx, err := l.CreateTransaction(ctx, transfer(123, "business", "drawer"), "")
			require.NoError(t, err)
			_, err = l.DeleteTransaction(ctx, tx.ID)
			require.NoError(t, err)

			after, err := l.Snapshot(ctx)
			require.NoError(t, err)
			for i := range before.Accounts {
				assert.True(t, before.Accounts[i].Balance.Equal(after.Accounts[i].Balance), before.Accounts[i].ID)
			}
		})
	}
}

func TestLedgerTransactionNumbersNeverReused(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)
			seen := make(map[string]bool)

			for i := 0; i < 5; i++ {
				tx, err := l.CreateTransaction(ctx, income(int64(i+1), "drawer"), "")
				require.NoError(t, err)
				assert.False(t, seen[tx.Number], tx.Number)
				seen[tx.Number] = true
				if i%2 == 0 {
					_, err = l.DeleteTransaction(ctx, tx.ID)
					require.NoError(t, err)
				}
			}

			last, err := l.CreateTransaction(ctx, income(1, "drawer"), "")
			require.NoError(t, err)
			assert.Equal(t, "TXN-000006", last.Number)
			assert.False(t, seen[last.Number])
		})
	}
}

func TestLedgerIdempotencyKey(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)

			first, err := l.CreateTransaction(ctx, income(100, "drawer"), "ref-1")
			require.NoError(t, err)
			again, err := l.CreateTransaction(ctx, income(100, "drawer"), "ref-1")
			require.NoError(t, err)
			assert.Equal(t, first.ID, again.ID)
			assertBalance(t, l, "drawer", 100)

			_, err = l.DeleteTransaction(ctx, first.ID)
			require.NoError(t, err)
			_, err = l.CreateTransaction(ctx, income(100, "drawer"), "ref-1")
			assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
			assertBalance(t, l, "drawer", 0)
		})
	}
}

func TestLedgerJournalFoldsToBalances(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			l := e.build(t, nil)

			a, err := l.CreateTransaction(ctx, income(1000, "drawer"), "")
			require.NoError(t, err)
			b, err := l.CreateTransaction(ctx, transfer(250, "drawer", "business"), "")
			require.NoError(t, err)
			_, _, err = l.EditTransaction(ctx, b.ID, transfer(300, "drawer", "cash_in_hand"))
			require.NoError(t, err)
			_, err = l.DeleteTransaction(ctx, a.ID)
			require.NoError(t, err)

			journal, err := l.Journal(ctx)
			require.NoError(t, err)
			require.Len(t, journal, 4)
			assert.Equal(t, domain.JournalOpEdit, journal[2].Op)

			folded := domain.FoldBalances(journal)
			for _, id := range []domain.AccountID{"drawer", "cash_in_hand", "business"} {
				assert.True(t, folded[id].Equal(balanceOf(t, l, id)), id)
			}
		})
	}
}

func TestLedgerRecoversFromWAL(t *testing.T) {
	for _, e := range engines() {
		e := e
		t.Run(e.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "wal.log")

			w, err := wal.NewWAL(path)
			require.NoError(t, err)
			l := e.build(t, w)
			t1, err := l.CreateTransaction(ctx, income(1000, "drawer"), "ref-a")
			require.NoError(t, err)
			t2, err := l.CreateTransaction(ctx, transfer(400, "drawer", "business"), "")
			require.NoError(t, err)
			edited := t1.TransactionFields
			edited.Amount = dec(1500)
			_, _, err = l.EditTransaction(ctx, t1.ID, edited)
			require.NoError(t, err)
			_, err = l.DeleteTransaction(ctx, t2.ID)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			reopened, err := wal.NewWAL(path)
			require.NoError(t, err)
			t.Cleanup(func() { reopened.Close() })
			recovered := e.build(t, reopened)

			assertBalance(t, recovered, "drawer", 1500)
			assertBalance(t, recovered, "business", 0)

			got, err := recovered.GetTransaction(ctx, t1.ID)
			require.NoError(t, err)
			assert.True(t, got.Amount.Equal(dec(1500)))

			next, err := recovered.CreateTransaction(ctx, income(1, "drawer"), "")
			require.NoError(t, err)
			assert.Equal(t, "TXN-000003", next.Number)

			replayed, err := recovered.CreateTransaction(ctx, income(1000, "drawer"), "ref-a")
			require.NoError(t, err)
			assert.Equal(t, t1.ID, replayed.ID)

			journal, err := recovered.Journal(ctx)
			require.NoError(t, err)
			assert.Len(t, journal, 5)
		})
	}
}

func TestMutexLedgerConcurrentOppositeTransfers(t *testing.T) {
	ctx := context.Background()
	l, err := NewMutexLedger(seedAccounts(), nil)
	require.NoError(t, err)

	_, err = l.CreateTransaction(ctx, income(100000, "drawer"), "")
	require.NoError(t, err)
	_, err = l.CreateTransaction(ctx, income(100000, "business"), "")
	require.NoError(t, err)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2)
	stop := make(chan struct{})

	// 讀者: 任何時間點的總額都必須是 200000
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap, err := l.Snapshot(ctx)
			if err != nil {
				errs <- err
				return
			}
			total := decimal.Zero
			for _, a := range snap.Accounts {
				total = total.Add(a.Balance)
			}
			if !total.Equal(dec(200000)) {
				errs <- fmt.Errorf("observed total %s", total)
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			from, to := domain.AccountID("drawer"), domain.AccountID("business")
			if w%2 == 1 {
				from, to = to, from
			}
			for i := 0; i < perWorker; i++ {
				tx, err := l.CreateTransaction(ctx, transfer(7, from, to), "")
				if err != nil {
					errs <- err
					return
				}
				if i%5 == 0 {
					if _, _, err := l.EditTransaction(ctx, tx.ID, transfer(3, to, "cash_in_hand")); err != nil {
						errs <- err
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	<-readerDone
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	assert.True(t, totalBalance(t, l).Equal(dec(200000)))
	journal, err := l.Journal(ctx)
	require.NoError(t, err)
	folded := domain.FoldBalances(journal)
	for _, id := range []domain.AccountID{"drawer", "cash_in_hand", "business"} {
		assert.True(t, folded[id].Equal(balanceOf(t, l, id)), id)
	}
}

func TestLMAXLedgerStopped(t *testing.T) {
	l, err := NewLMAXLedger(seedAccounts(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	<-l.Done()

	_, err = l.CreateTransaction(context.Background(), income(1, "drawer"), "")
	assert.ErrorIs(t, err, ErrLedgerStopped)
}
