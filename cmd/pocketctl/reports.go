package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pockets/internal/cli"
	"pockets/internal/core"
	"pockets/internal/report"
)

var (
	flagDays  int
	flagMonth string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Balance, spending and bill reports",
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Total balance per category",
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

var spendingCmd = &cobra.Command{
	Use:   "spending",
	Short: "Expenses grouped by pocket",
	Args:  cobra.NoArgs,
	RunE:  runSpending,
}

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "Upcoming and overdue bills",
	Args:  cobra.NoArgs,
	RunE:  runBills,
}

var monthCmd = &cobra.Command{
	Use:   "month",
	Short: "Income, expenses and payments for a month",
	Args:  cobra.NoArgs,
	RunE:  runMonth,
}

func init() {
	billsCmd.Flags().IntVar(&flagDays, "days", 7, "Look-ahead window in days")
	monthCmd.Flags().StringVar(&flagMonth, "month", "", "Month as YYYY-MM, default current")

	reportCmd.AddCommand(balanceCmd, spendingCmd, billsCmd, monthCmd)
	rootCmd.AddCommand(reportCmd)
}

func runBalance(_ *cobra.Command, _ []string) error {
	pockets := current.ledger.Pockets()
	rows := make([][]string, 0, len(core.Categories())+2)
	for _, ct := range report.CategoryTotals(pockets) {
		rows = append(rows, []string{string(ct.Category), strconv.Itoa(ct.Count), money(ct.Total)})
	}
	rows = append(rows, []string{"---"}, []string{"Total", strconv.Itoa(len(pockets)), money(report.TotalBalance(pockets))})

	fmt.Fprintln(current.out, cli.RenderTitle("BALANCE"))
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Headers:    []string{"Category", "Pockets", "Balance"},
		Rows:       rows,
		RightAlign: map[int]bool{1: true, 2: true},
	}))
	return nil
}

func runSpending(_ *cobra.Command, _ []string) error {
	pockets := current.ledger.Pockets()
	shares := report.SpendingBreakdown(core.Flatten(pockets), pockets)
	if len(shares) == 0 {
		fmt.Fprintln(current.out, cli.Muted("  No expenses recorded."))
		return nil
	}
	rows := make([][]string, 0, len(shares))
	for _, s := range shares {
		rows = append(rows, []string{s.Name, s.Amount.Format(current.cfg.Currency), cli.FormatPercent(s.Percentage.StringFixed(2))})
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Title:      "Spending",
		Headers:    []string{"Pocket", "Spent", "Share"},
		Rows:       rows,
		RightAlign: map[int]bool{1: true, 2: true},
	}))
	return nil
}

func runBills(_ *cobra.Command, _ []string) error {
	if flagDays < 0 || flagDays > 365 {
		return fmt.Errorf("%w: --days must be between 0 and 365", core.ErrValidation)
	}
	pockets := current.ledger.Pockets()
	now := time.Now()

	var rows [][]string
	for _, p := range report.OverdueBills(pockets, now) {
		rows = append(rows, billRow(p, now))
	}
	upcoming := report.UpcomingBills(pockets, now, flagDays)
	if len(rows) > 0 && len(upcoming) > 0 {
		rows = append(rows, []string{"---"})
	}
	for _, p := range upcoming {
		rows = append(rows, billRow(p, now))
	}
	if len(rows) == 0 {
		fmt.Fprintln(current.out, cli.Muted(fmt.Sprintf("  No bills due in the next %d days.", flagDays)))
		return nil
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Title:      fmt.Sprintf("Bills (next %d days)", flagDays),
		Headers:    []string{"ID", "Bill", "Amount", "Due"},
		Rows:       rows,
		RightAlign: map[int]bool{2: true},
	}))
	return nil
}

func billRow(p core.Pocket, now time.Time) []string {
	return []string{p.ID, p.Name, p.GoalAmount().Format(current.cfg.Currency), due(p, now)}
}

func runMonth(_ *cobra.Command, _ []string) error {
	at := time.Now().UTC()
	if flagMonth != "" {
		t, err := time.Parse("2006-01", flagMonth)
		if err != nil {
			return fmt.Errorf("%w: --month must be YYYY-MM", core.ErrValidation)
		}
		at = t
	}
	s := report.Month(core.Flatten(current.ledger.Pockets()), at.Year(), at.Month())

	fmt.Fprintln(current.out, cli.RenderTitle(fmt.Sprintf("%s %d", s.Month, s.Year)))
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Rows: [][]string{
			{"Income", money(s.Income)},
			{"Expenses", money(s.Expenses.Neg())},
			{"Bill payments", money(s.Payments.Neg())},
			{"---"},
			{"Net", money(s.Net)},
			{"Transactions", strconv.Itoa(s.Count)},
		},
		RightAlign: map[int]bool{1: true},
	}))
	return nil
}
