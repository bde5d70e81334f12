// Package report derives totals and breakdowns from a pocket collection.
// Every function is pure: no I/O and no mutation of its inputs.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pockets/internal/core"
)

// UnassignedGroup names spending whose pocket no longer exists.
const UnassignedGroup = "Unassigned"

var hundred = decimal.NewFromInt(100)

type (
	CategoryTotal struct {
		Category core.Category `json:"category"`
		Total    core.Money    `json:"total"`
		Count    int           `json:"count"`
	}

	// SpendingShare is one group of a spending breakdown.
	SpendingShare struct {
		Name       string          `json:"name"`
		Amount     core.Money      `json:"amount"`
		Percentage decimal.Decimal `json:"percentage"`
	}

	MonthSummary struct {
		Year     int        `json:"year"`
		Month    time.Month `json:"month"`
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
		Payments core.Money `json:"payments"`
		Net      core.Money `json:"net"`
		Count    int        `json:"count"`
	}
)

// TotalBalance sums CurrentAmount across all pockets.
func TotalBalance(pockets []core.Pocket) core.Money {
	var total core.Money
	for _, p := range pockets {
		total = total.Add(p.CurrentAmount)
	}
	return total
}

func TotalByCategory(pockets []core.Pocket, category core.Category) core.Money {
	var total core.Money
	for _, p := range pockets {
		if p.Category == category {
			total = total.Add(p.CurrentAmount)
		}
	}
	return total
}

// CategoryTotals reports every known category, including empty ones, in
// core.Categories order.
func CategoryTotals(pockets []core.Pocket) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		ct := CategoryTotal{Category: c}
		for _, p := range pockets {
			if p.Category == c {
				ct.Total = ct.Total.Add(p.CurrentAmount)
				ct.Count++
			}
		}
		out = append(out, ct)
	}
	return out
}

// SpendingBreakdown groups expense transactions by owning pocket name.
// Percentages are rounded to two places; when nothing was spent every
// percentage is zero. Groups are ordered by amount, largest first.
func SpendingBreakdown(txns []core.PocketTransaction, pockets []core.Pocket) []SpendingShare {
	names := make(map[string]string, len(pockets))
	for _, p := range pockets {
		names[p.ID] = p.Name
	}

	sums := make(map[string]core.Money)
	var total core.Money
	for _, pt := range txns {
		if pt.Transaction.Type != core.TxnExpense {
			continue
		}
		name, ok := names[pt.PocketID]
		if !ok {
			name = UnassignedGroup
		}
		sums[name] = sums[name].Add(pt.Transaction.Amount)
		total = total.Add(pt.Transaction.Amount)
	}

	out := make([]SpendingShare, 0, len(sums))
	for name, amount := range sums {
		out = append(out, SpendingShare{
			Name:       name,
			Amount:     amount,
			Percentage: percentage(amount, total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[j].Amount.LessThan(out[i].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func percentage(part, total core.Money) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(part.Cents).
		Mul(hundred).
		Div(decimal.NewFromInt(total.Cents)).
		Round(2)
}

// UpcomingBills lists unpaid bills due between the start of today and
// withinDays days from now, soonest first. Bills without a due date are
// skipped.
//
// The window opens at midnight of now's day, not at now. Due dates are
// date-only values at 00:00, so a bill due today stays upcoming for the
// whole day instead of turning overdue the moment the day starts.
func UpcomingBills(pockets []core.Pocket, now time.Time, withinDays int) []core.Pocket {
	start := startOfDay(now)
	end := now.AddDate(0, 0, withinDays)

	var out []core.Pocket
	for _, p := range pockets {
		if !p.IsBill() || p.IsPaid || p.DueDate == nil {
			continue
		}
		due := *p.DueDate
		if due.Before(start) || due.After(end) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}

// OverdueBills lists unpaid bills whose due date is before today.
func OverdueBills(pockets []core.Pocket, now time.Time) []core.Pocket {
	start := startOfDay(now)
	var out []core.Pocket
	for _, p := range pockets {
		if p.IsBill() && !p.IsPaid && p.DueDate != nil && p.DueDate.Before(start) {
			out = append(out, p.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}

// Month sums the transactions dated in the given month.
func Month(txns []core.PocketTransaction, year int, month time.Month) MonthSummary {
	s := MonthSummary{Year: year, Month: month}
	for _, pt := range txns {
		t := pt.Transaction
		d := t.Date.UTC()
		if d.Year() != year || d.Month() != month {
			continue
		}
		switch t.Type {
		case core.TxnIncome:
			s.Income = s.Income.Add(t.Amount)
		case core.TxnExpense:
			s.Expenses = s.Expenses.Add(t.Amount)
		case core.TxnPayment:
			s.Payments = s.Payments.Add(t.Amount)
		}
		s.Count++
	}
	s.Net = s.Income.Sub(s.Expenses).Sub(s.Payments)
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
