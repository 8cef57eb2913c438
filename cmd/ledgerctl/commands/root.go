package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
	grpcpkg "github.com/JoeShih716/go-cash-ledger/pkg/grpc"
)

// app 所有子命令共用的狀態
type app struct {
	addr    string
	timeout time.Duration
	pool    *grpcpkg.Pool
}

// client 從連線池取得帳本服務的客戶端
func (a *app) client() (*grpc_adapter.LedgerServiceClient, error) {
	conn, err := a.pool.GetConnection(a.addr)
	if err != nil {
		return nil, err
	}
	return grpc_adapter.NewLedgerServiceClient(conn), nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

// NewRootCmd 建立 ledgerctl 根命令
// poolOpts 會傳給 gRPC 連線池 (測試時用來注入 bufconn dialer)
func NewRootCmd(poolOpts ...grpcpkg.PoolOption) *cobra.Command {
	a := &app{pool: grpcpkg.NewPool(poolOpts...)}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Command line client for the cash ledger gRPC service",
		Long: `ledgerctl talks to a running cash ledger over gRPC.

Examples:
  ledgerctl accounts
  ledgerctl create --name "Sale" --type income --amount 120.50 --account drawer
  ledgerctl bench --count 10000 --concurrency 100`,
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.pool.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.addr, "addr", envOr("LEDGER_GRPC_TARGET", "localhost:50051"), "gRPC address of the ledger service")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 10*time.Second, "Per-request timeout")

	root.AddCommand(
		newAccountsCmd(a),
		newBalanceCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newGetCmd(a),
		newBenchCmd(a),
	)
	return root
}

// Execute 執行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
