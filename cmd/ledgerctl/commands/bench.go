package commands

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/api"
)

// benchResult 壓測結果
type benchResult struct {
	Total   int
	Failed  int64
	Elapsed time.Duration
}

func (r benchResult) TPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Total) / r.Elapsed.Seconds()
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		count       int
		concurrency int
		from, to    string
		amount      string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fire concurrent transfers at the ledger and report throughput",
		Long: `Sends --count transfers from --from to --to with at most --concurrency in flight.
Every request carries a fresh ref so nothing is deduplicated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			if count <= 0 || concurrency <= 0 {
				return fmt.Errorf("--count and --concurrency must be positive")
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			var failed atomic.Int64
			var g errgroup.Group
			g.SetLimit(concurrency)

			start := time.Now()
			for i := 0; i < count; i++ {
				i := i
				g.Go(func() error {
					ctx, cancel := a.context(cmd)
					defer cancel()
					_, err := client.CreateTransaction(ctx, &api.CreateTransactionRequest{
						RefID: uuid.NewString(),
						Transaction: api.TransactionRequest{
							Name:                fmt.Sprintf("bench-%d", i),
							Type:                "transfer",
							Amount:              amt,
							AccountID:           from,
							TransferToAccountID: to,
						},
					})
					if err != nil {
						if failed.Add(1) == 1 {
							fmt.Fprintf(cmd.ErrOrStderr(), "first failure: %v\n", err)
						}
					}
					return nil
				})
			}
			_ = g.Wait()

			res := benchResult{Total: count, Failed: failed.Load(), Elapsed: time.Since(start)}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Completed %d requests in %v (%d failed)\n", res.Total, res.Elapsed, res.Failed)
			fmt.Fprintf(out, "TPS: %.2f\n", res.TPS())
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10000, "Number of transfers to send")
	cmd.Flags().IntVar(&concurrency, "concurrency", 100, "Maximum requests in flight")
	cmd.Flags().StringVar(&from, "from", "drawer", "Source account")
	cmd.Flags().StringVar(&to, "to", "business", "Destination account")
	cmd.Flags().StringVar(&amount, "amount", "1", "Amount per transfer")
	return cmd
}
