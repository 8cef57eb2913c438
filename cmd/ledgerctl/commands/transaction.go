package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/api"
)

// transactionFlags create / edit 共用的旗標
type transactionFlags struct {
	req    api.TransactionRequest
	amount string
}

func (f *transactionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.req.Name, "name", "", "Transaction name (required)")
	flags.StringVar(&f.req.Description, "description", "", "Free-form description")
	flags.StringVar(&f.req.Category, "category", "", "Category label")
	flags.StringVar(&f.req.Type, "type", "", "income, expense or transfer (required)")
	flags.StringVar(&f.amount, "amount", "", "Positive amount, e.g. 120.50 (required)")
	flags.StringVar(&f.req.AccountID, "account", "", "Source account id (required)")
	flags.StringVar(&f.req.TransferToAccountID, "to", "", "Destination account id for transfers")
	flags.StringVar(&f.req.TransactionDate, "date", "", "YYYY-MM-DD or RFC3339, defaults to now on create and to the stored date on edit")
	for _, name := range []string{"name", "type", "amount", "account"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *transactionFlags) request() (api.TransactionRequest, error) {
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return api.TransactionRequest{}, fmt.Errorf("invalid --amount %q: %w", f.amount, err)
	}
	req := f.req
	req.Amount = amount
	return req, nil
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		flags transactionFlags
		refID string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.CreateTransaction(ctx, &api.CreateTransactionRequest{RefID: refID, Transaction: req})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Transaction)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&refID, "ref", "", "Idempotency reference; the same ref is only recorded once")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var flags transactionFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace every field of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.EditTransaction(ctx, &api.EditTransactionRequest{ID: args[0], Transaction: req})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Transaction)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and reverse its effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.DeleteTransaction(ctx, &api.TransactionIDRequest{ID: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", resp.Transaction.Number)
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.GetTransaction(ctx, &api.TransactionIDRequest{ID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Transaction)
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.ListAccounts(ctx, &api.ListAccountsRequest{})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE")
			for _, acc := range resp.Accounts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.Type, acc.Balance.StringFixed(2))
			}
			return tw.Flush()
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <accountId>",
		Short: "Show the balance of one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := client.GetBalance(ctx, &api.GetBalanceRequest{AccountID: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.AccountID, resp.Balance.StringFixed(2))
			return nil
		},
	}
}
