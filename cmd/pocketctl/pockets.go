package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pockets/internal/cli"
	"pockets/internal/core"
	"pockets/internal/ledger"
)

var (
	flagCategory string
	flagGoal     string
	flagDue      string
	flagName     string
	flagPaid     string
	flagConfirm  bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List pockets",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var showCmd = &cobra.Command{
	Use:   "show <pocket-id>",
	Short: "Show a pocket and its transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a pocket",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var updateCmd = &cobra.Command{
	Use:   "update <pocket-id>",
	Short: "Change a pocket's name, category, goal, due date or paid flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var rmCmd = &cobra.Command{
	Use:     "rm <pocket-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a pocket and its history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.ledger.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(current.out, cli.Notice("success", "Removed "+args[0]))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every pocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagConfirm {
			return errors.New("refusing to delete every pocket without --yes")
		}
		if err := current.ledger.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(current.out, cli.Notice("info", "All data cleared"))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Only show this category")

	addCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Category: "+categoryList()+" (default general)")
	addCmd.Flags().StringVarP(&flagGoal, "goal", "g", "", "Goal amount, e.g. 250.00")
	addCmd.Flags().StringVar(&flagDue, "due", "", "Due date (YYYY-MM-DD), bills only")

	updateCmd.Flags().StringVar(&flagName, "name", "", "New name")
	updateCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "New category")
	updateCmd.Flags().StringVarP(&flagGoal, "goal", "g", "", "New goal; 0 clears it")
	updateCmd.Flags().StringVar(&flagDue, "due", "", "New due date (YYYY-MM-DD)")
	updateCmd.Flags().StringVar(&flagPaid, "paid", "", "Set the paid flag (true or false)")

	resetCmd.Flags().BoolVar(&flagConfirm, "yes", false, "Confirm deleting every pocket")

	rootCmd.AddCommand(listCmd, showCmd, addCmd, updateCmd, rmCmd, resetCmd)
}

func runList(_ *cobra.Command, _ []string) error {
	pockets := current.ledger.Pockets()
	if flagCategory != "" {
		c, err := core.ParseCategory(flagCategory)
		if err != nil {
			return err
		}
		filtered := pockets[:0]
		for _, p := range pockets {
			if p.Category == c {
				filtered = append(filtered, p)
			}
		}
		pockets = filtered
	}
	if len(pockets) == 0 {
		fmt.Fprintln(current.out, cli.Muted("  No pockets yet. Create one with: pocketctl add <name>"))
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(pockets))
	for _, p := range pockets {
		rows = append(rows, []string{
			p.ID,
			p.Name,
			string(p.Category),
			money(p.CurrentAmount),
			goal(p),
			due(p, now),
		})
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Headers:    []string{"ID", "Name", "Category", "Balance", "Goal", "Due"},
		Rows:       rows,
		RightAlign: map[int]bool{3: true, 4: true},
	}))
	return nil
}

func runShow(_ *cobra.Command, args []string) error {
	p, err := current.ledger.Pocket(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(current.out, cli.RenderTitle(p.Name))

	rows := [][]string{
		{"Category", string(p.Category)},
		{"Balance", money(p.CurrentAmount)},
		{"Goal", goal(p)},
		{"Created", p.CreatedAt.Format(time.DateOnly)},
	}
	if p.IsBill() {
		rows = append(rows, []string{"Due", due(p, time.Now())})
		if p.LastPaidDate != nil {
			rows = append(rows, []string{"Last paid", p.LastPaidDate.Format(time.DateOnly)})
		}
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{Rows: rows}))

	if len(p.Transactions) == 0 {
		fmt.Fprintln(current.out, cli.Muted("  No transactions."))
		return nil
	}
	txns := make([][]string, 0, len(p.Transactions))
	for _, t := range p.Transactions {
		txns = append(txns, []string{
			t.Date.Format(time.DateOnly),
			string(t.Type),
			t.Description,
			cli.Amount(t.Signed().Format(current.cfg.Currency), t.Signed().IsNegative()),
		})
	}
	fmt.Fprint(current.out, cli.RenderTable(cli.Table{
		Title:      "Transactions",
		Headers:    []string{"Date", "Type", "Description", "Amount"},
		Rows:       txns,
		RightAlign: map[int]bool{3: true},
	}))
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	d := ledger.PocketDraft{Name: args[0], Category: core.CategoryGeneral}
	var err error
	if flagCategory != "" {
		if d.Category, err = core.ParseCategory(flagCategory); err != nil {
			return err
		}
	}
	if d.Goal, err = parseGoal(flagGoal); err != nil {
		return err
	}
	if flagDue != "" {
		t, err := parseDate(flagDue)
		if err != nil {
			return err
		}
		d.DueDate = &t
	}

	p, err := current.ledger.Add(cmd.Context(), d)
	if err != nil {
		return err
	}
	fmt.Fprintln(current.out, cli.Notice("success", fmt.Sprintf("Created %s (%s)", p.Name, p.ID)))
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var patch ledger.PocketPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &flagName
	}
	if flags.Changed("category") {
		c, err := core.ParseCategory(flagCategory)
		if err != nil {
			return err
		}
		patch.Category = &c
	}
	if flags.Changed("goal") {
		g, err := parseGoal(flagGoal)
		if err != nil {
			return err
		}
		if g == nil {
			g = &core.Money{}
		}
		patch.Goal = g
	}
	if flags.Changed("due") {
		t, err := parseDate(flagDue)
		if err != nil {
			return err
		}
		patch.DueDate = &t
	}
	if flags.Changed("paid") {
		paid, err := strconv.ParseBool(flagPaid)
		if err != nil {
			return fmt.Errorf("%w: --paid must be true or false", core.ErrValidation)
		}
		patch.IsPaid = &paid
	}

	p, err := current.ledger.Update(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	fmt.Fprintln(current.out, cli.Notice("success", "Updated "+p.Name))
	return nil
}

func money(m core.Money) string {
	return cli.Amount(m.Format(current.cfg.Currency), m.IsNegative())
}

func goal(p core.Pocket) string {
	if p.Goal == nil || p.Goal.IsZero() {
		return cli.Muted("-")
	}
	return p.Goal.Format(current.cfg.Currency)
}

func due(p core.Pocket, now time.Time) string {
	if p.DueDate == nil {
		return cli.Muted("-")
	}
	overdue := p.DueDate.Before(now) && !p.IsPaid
	return p.DueDate.Format(time.DateOnly) + " " + cli.Status(p.IsPaid, overdue)
}

func categoryList() string {
	names := make([]string, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// parseGoal accepts an empty string (no goal), zero or a positive amount.
func parseGoal(s string) (*core.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Trim(s, "0.,") == "" {
		return &core.Money{}, nil
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return nil, core.ErrInvalidGoal
	}
	return &m, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", core.ErrValidation, s)
	}
	return t, nil
}
