package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	grpcpkg "github.com/JoeShih716/go-cash-ledger/pkg/grpc"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
)

// startServer 啟動記憶體帳本 + bufconn gRPC server，回傳執行 ledgerctl 的函式
func startServer(t *testing.T) func(args ...string) (string, error) {
	t.Helper()
	ledger, err := memory.NewMutexLedger(map[domain.AccountID]*domain.Account{
		"drawer":   domain.NewAccount("drawer", "Till Drawer", domain.AccountTypeDrawer),
		"business": domain.NewAccount("business", "Business Account", domain.AccountTypeBusiness),
	}, nil)
	require.NoError(t, err)
	core := usecase.NewCoreUseCase(ledger, usecase.WithLocation(time.UTC), usecase.WithLogger(logging.NewNoOpLogger()))

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc_adapter.NewServer(core, logging.NewNoOpLogger())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return func(args ...string) (string, error) {
		root := NewRootCmd(grpcpkg.WithDialOptions(dialer))
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--addr", "passthrough:///bufnet", "--timeout", "5s"}, args...))
		err := root.Execute()
		return out.String(), err
	}
}

func TestLedgerctlTransactionLifecycle(t *testing.T) {
	run := startServer(t)

	out, err := run("create", "--name", "Deposit", "--type", "transfer", "--amount", "250.50",
		"--account", "drawer", "--to", "business", "--date", "2026-10-19", "--ref", "order-1")
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "TXN-000001", created["transactionNumber"])
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	out, err = run("balance", "business")
	require.NoError(t, err)
	assert.Equal(t, "business 250.50\n", out)

	out, err = run("edit", id, "--name", "Deposit", "--type", "income", "--amount", "100", "--account", "drawer")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "income"`)

	out, err = run("accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "drawer")
	assert.Contains(t, out, "100.00")

	out, err = run("get", id)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run("delete", id)
	require.NoError(t, err)
	assert.Equal(t, "deleted TXN-000001\n", out)

	_, err = run("get", id)
	assert.ErrorContains(t, err, "NotFound")
}

func TestLedgerctlRejectsBadInput(t *testing.T) {
	run := startServer(t)

	_, err := run("create", "--name", "x", "--type", "income", "--amount", "abc", "--account", "drawer")
	assert.ErrorContains(t, err, "invalid --amount")

	_, err = run("create", "--name", "x", "--type", "income", "--account", "drawer")
	assert.ErrorContains(t, err, `"amount" not set`)

	_, err = run("create", "--name", "x", "--type", "income", "--amount", "-5", "--account", "drawer")
	assert.ErrorContains(t, err, "InvalidArgument")

	_, err = run("balance", "vault")
	assert.ErrorContains(t, err, "NotFound")
}

func TestLedgerctlBench(t *testing.T) {
	run := startServer(t)

	out, err := run("bench", "--count", "20", "--concurrency", "4", "--amount", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed 20 requests")
	assert.Contains(t, out, "(0 failed)")

	out, err = run("balance", "business")
	require.NoError(t, err)
	assert.Equal(t, "business 40.00\n", out)
}

func TestBenchResultTPS(t *testing.T) {
	assert.Zero(t, benchResult{Total: 10}.TPS())
	assert.InDelta(t, 5.0, benchResult{Total: 10, Elapsed: 2 * time.Second}.TPS(), 1e-9)
}
