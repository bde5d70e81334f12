package http

import (
	"time"

	"pockets/internal/core"
	"pockets/internal/report"
)

// Amounts are integer cents; the *_display fields are formatted in the
// configured currency.
type (
	pocketView struct {
		ID               string            `json:"id"`
		Name             string            `json:"name"`
		Category         core.Category     `json:"category"`
		Goal             *core.Money       `json:"goal,omitempty"`
		CurrentAmount    core.Money        `json:"current_amount"`
		CurrentDisplay   string            `json:"current_amount_display"`
		DueDate          *time.Time        `json:"due_date,omitempty"`
		IsPaid           bool              `json:"is_paid"`
		LastPaidDate     *time.Time        `json:"last_paid_date,omitempty"`
		CreatedAt        time.Time         `json:"created_at"`
		TransactionCount int               `json:"transaction_count"`
		Transactions     []transactionView `json:"transactions,omitempty"`
	}

	transactionView struct {
		ID          string               `json:"id"`
		PocketID    string               `json:"pocket_id,omitempty"`
		PocketName  string               `json:"pocket_name,omitempty"`
		Amount      core.Money           `json:"amount"`
		Display     string               `json:"amount_display"`
		Type        core.TransactionType `json:"type"`
		Description string               `json:"description"`
		Date        time.Time            `json:"date"`
	}

	billPaymentView struct {
		Bill     pocketView      `json:"bill"`
		Source   pocketView      `json:"source"`
		Payment  transactionView `json:"payment"`
		Transfer transactionView `json:"transfer"`
	}

	summaryView struct {
		Total        core.Money             `json:"total"`
		TotalDisplay string                 `json:"total_display"`
		Categories   []report.CategoryTotal `json:"categories"`
		PocketCount  int                    `json:"pocket_count"`
		Version      uint64                 `json:"version"`
	}

	upcomingView struct {
		Days     int          `json:"days"`
		Upcoming []pocketView `json:"upcoming"`
		Overdue  []pocketView `json:"overdue"`
	}
)

func (s *Server) pocketView(p core.Pocket, withTxns bool) pocketView {
	v := pocketView{
		ID:               p.ID,
		Name:             p.Name,
		Category:         p.Category,
		Goal:             p.Goal,
		CurrentAmount:    p.CurrentAmount,
		CurrentDisplay:   p.CurrentAmount.Format(s.currency),
		DueDate:          p.DueDate,
		IsPaid:           p.IsPaid,
		LastPaidDate:     p.LastPaidDate,
		CreatedAt:        p.CreatedAt,
		TransactionCount: len(p.Transactions),
	}
	if withTxns {
		v.Transactions = make([]transactionView, 0, len(p.Transactions))
		for _, t := range p.Transactions {
			v.Transactions = append(v.Transactions, s.transactionView(t, "", ""))
		}
	}
	return v
}

func (s *Server) transactionView(t core.Transaction, pocketID, pocketName string) transactionView {
	return transactionView{
		ID:          t.ID,
		PocketID:    pocketID,
		PocketName:  pocketName,
		Amount:      t.Amount,
		Display:     t.Amount.Format(s.currency),
		Type:        t.Type,
		Description: t.Description,
		Date:        t.Date,
	}
}

func (s *Server) pocketViews(pockets []core.Pocket) []pocketView {
	out := make([]pocketView, 0, len(pockets))
	for _, p := range pockets {
		out = append(out, s.pocketView(p, false))
	}
	return out
}
