package core

import (
	"strings"
	"time"
)

const (
	CategoryExpense    Category = "expense"
	CategorySaving     Category = "saving"
	CategoryBills      Category = "bills"
	CategoryGeneral    Category = "general"
	CategoryInvestment Category = "investment"
)

const (
	TxnIncome  TransactionType = "income"
	TxnExpense TransactionType = "expense"
	TxnPayment TransactionType = "payment"
)

type (
	Category        string
	TransactionType string

	// Transaction is an append-only entry embedded in a Pocket.
	Transaction struct {
		ID          string
		Amount      Money // magnitude, always positive
		Type        TransactionType
		Description string
		Date        time.Time
	}

	// Pocket is a named bucket of money: an account, a savings goal or a bill.
	Pocket struct {
		ID            string
		Name          string
		Category      Category
		Goal          *Money
		CurrentAmount Money
		DueDate       *time.Time
		IsPaid        bool
		LastPaidDate  *time.Time
		Transactions  []Transaction
		CreatedAt     time.Time
	}

	// PocketTransaction is a transaction together with the pocket that owns it.
	PocketTransaction struct {
		PocketID    string
		PocketName  string
		Category    Category
		Transaction Transaction
	}
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{CategoryGeneral, CategoryExpense, CategorySaving, CategoryBills, CategoryInvestment}
}

func (c Category) Validate() error {
	switch c {
	case CategoryExpense, CategorySaving, CategoryBills, CategoryGeneral, CategoryInvestment:
		return nil
	default:
		return ErrInvalidCategory
	}
}

// ParseCategory normalizes user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// StartsEmpty reports whether pockets of this category start at zero
// instead of at their goal.
func (c Category) StartsEmpty() bool {
	return c == CategoryExpense || c == CategorySaving
}

func (t TransactionType) Validate() error {
	switch t {
	case TxnIncome, TxnExpense, TxnPayment:
		return nil
	default:
		return ErrInvalidTransactionType
	}
}

// Signed returns the amount applied to a pocket balance: income adds,
// expense and payment subtract.
func (t Transaction) Signed() Money {
	if t.Type == TxnIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

// GoalAmount returns the goal, or zero when none is set.
func (p Pocket) GoalAmount() Money {
	if p.Goal == nil {
		return Money{}
	}
	return *p.Goal
}

// InitialAmount is the balance a pocket is created with.
func (p Pocket) InitialAmount() Money {
	if p.Category.StartsEmpty() {
		return Money{}
	}
	return p.GoalAmount()
}

// IsBill reports whether the pocket tracks a bill.
func (p Pocket) IsBill() bool {
	return p.Category == CategoryBills
}

// Reconcile recomputes the balance from the initial amount and the
// transaction history. ok is false when CurrentAmount disagrees.
func (p Pocket) Reconcile() (expected Money, ok bool) {
	expected = p.InitialAmount()
	for _, t := range p.Transactions {
		expected = expected.Add(t.Signed())
	}
	return expected, expected == p.CurrentAmount
}

func (p Pocket) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 100 {
		return ErrNameTooLong
	}
	if err := p.Category.Validate(); err != nil {
		return err
	}
	if p.Goal != nil && (p.Goal.IsNegative() || p.Goal.Cents > MaxCents) {
		return ErrInvalidGoal
	}
	return nil
}

// Clone returns a deep copy so callers never share slices or pointers
// with the ledger.
func (p Pocket) Clone() Pocket {
	out := p
	if p.Goal != nil {
		g := *p.Goal
		out.Goal = &g
	}
	if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.LastPaidDate != nil {
		d := *p.LastPaidDate
		out.LastPaidDate = &d
	}
	if p.Transactions != nil {
		out.Transactions = make([]Transaction, len(p.Transactions))
		copy(out.Transactions, p.Transactions)
	}
	return out
}

// ClonePockets deep-copies a collection.
func ClonePockets(in []Pocket) []Pocket {
	if in == nil {
		return nil
	}
	out := make([]Pocket, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// Flatten lists every transaction of every pocket with its owner.
func Flatten(pockets []Pocket) []PocketTransaction {
	var out []PocketTransaction
	for _, p := range pockets {
		for _, t := range p.Transactions {
			out = append(out, PocketTransaction{
				PocketID:    p.ID,
				PocketName:  p.Name,
				Category:    p.Category,
				Transaction: t,
			})
		}
	}
	return out
}
