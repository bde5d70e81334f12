package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pockets/internal/cli"
	"pockets/internal/core"
	"pockets/internal/ledger"
)

var (
	flagTxnType string
	flagDesc    string
	flagDate    string
	flagFrom    string
	flagLimit   int
)

var txnCmd = &cobra.Command{
	Use:   "txn <pocket-id> <amount>",
	Short: "Record income or an expense on a pocket",
	Example: `  pocketctl txn 0190a1b2 42.50 --desc "Groceries"
  pocketctl txn 0190a1b2 1500 --type income --desc "Salary"`,
	Args: cobra.ExactArgs(2),
	RunE: runTxn,
}

var payCmd = &cobra.Command{
	Use:   "pay <bill-id>",
	Short: "Pay a bill from another pocket",
	Args:  cobra.ExactArgs(1),
	RunE:  runPay,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List transactions across all pockets, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	txnCmd.Flags().StringVarP(&flagTxnType, "type", "t", string(core.TxnExpense), "income or expense")
	txnCmd.Flags().StringVarP(&flagDesc, "desc", "d", "", "Description")
	txnCmd.Flags().StringVar(&flagDate, "date", "", "Date (YYYY-MM-DD), default now")

	payCmd.Flags().StringVar(&flagFrom, "from", "", "Pocket to pay from (required)")
	_ = payCmd.MarkFlagRequired("from")

	historyCmd.Flags().IntVarP(&flagLimit, "limit", "l", 20, "Maximum rows; 0 shows all")

	rootCmd.AddCommand(txnCmd, payCmd, historyCmd)
}

func runTxn(cmd *cobra.Command, args []string) error {
	amount, err := core.ParseMoney(args[1])
	if err != nil {
		return err
	}
	d := ledger.TransactionDraft{
		Amount:      amount,
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(flagTxnType))),
		Description: flagDesc,
	}
	if flagDate != "" {
		if d.Date, err = parseDate(flagDate); err != nil {
			return err
		}
	}

	t, err := current.ledger.AddTransaction(cmd.Context(), args[0], d)
	if err != nil {
		return err
	}
	p, err := current.ledger.Pocket(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(current.out, cli.Notice("success", fmt.Sprintf("Recorded %s %s on %s, balance %s",
		t.Type, t.Amount.Format(current.cfg.Currency), p.Name, p.CurrentAmount.Format(current.cfg.Currency))))
	return nil
}

func runPay(cmd *cobra.Command, args []string) error {
	res, err := current.ledger.TransferForBillPayment(cmd.Context(), args[0], flagFrom)
	if err != nil {
		return err
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Title:   "Bill paid",
		Headers: []string{"Pocket", "Change", "Balance"},
		Rows: [][]string{
			{res.Source.Name, money(res.Transfer.Signed()), money(res.Source.CurrentAmount)},
			{res.Bill.Name, money(res.Payment.Signed()), money(res.Bill.CurrentAmount)},
		},
		RightAlign: map[int]bool{1: true, 2: true},
	}))
	return nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	txns := core.Flatten(current.ledger.Pockets())
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Transaction.Date.After(txns[j].Transaction.Date)
	})
	if flagLimit > 0 && len(txns) > flagLimit {
		txns = txns[:flagLimit]
	}
	if len(txns) == 0 {
		fmt.Fprintln(current.out, cli.Muted("  No transactions yet."))
		return nil
	}

	rows := make([][]string, 0, len(txns))
	for _, pt := range txns {
		t := pt.Transaction
		rows = append(rows, []string{
			t.Date.Local().Format(time.DateOnly),
			pt.PocketName,
			string(t.Type),
			t.Description,
			money(t.Signed()),
		})
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Headers:    []string{"Date", "Pocket", "Type", "Description", "Amount"},
		Rows:       rows,
		RightAlign: map[int]bool{4: true},
	}))
	return nil
}
