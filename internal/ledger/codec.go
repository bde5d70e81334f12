package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pockets/internal/core"
)

// SchemaVersion is written into every envelope produced by Encode.
const SchemaVersion = 2

// ErrCorrupt is returned by Decode when the blob cannot be read as any
// known schema version.
var ErrCorrupt = errors.New("corrupt ledger data")

type envelope struct {
	Version int            `json:"version"`
	Pockets []pocketRecord `json:"pockets"`
}

type pocketRecord struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Category      core.Category       `json:"category"`
	Goal          *int64              `json:"goal,omitempty"`
	CurrentAmount int64               `json:"currentAmount"`
	DueDate       *time.Time          `json:"dueDate,omitempty"`
	IsPaid        bool                `json:"isPaid"`
	LastPaidDate  *time.Time          `json:"lastPaidDate,omitempty"`
	Transactions  []transactionRecord `json:"transactions"`
	CreatedAt     time.Time           `json:"createdAt"`
}

type transactionRecord struct {
	ID          string               `json:"id"`
	Amount      int64                `json:"amount"`
	Type        core.TransactionType `json:"type"`
	Description string               `json:"description"`
	Date        time.Time            `json:"date"`
}

// legacyPocket is the version 1 shape: a bare array of records with
// major-unit float amounts and a few renamed fields.
type legacyPocket struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Title         string              `json:"title"`
	Category      string              `json:"category"`
	Goal          *float64            `json:"goal"`
	CurrentAmount *float64            `json:"currentAmount"`
	Balance       *float64            `json:"balance"`
	DueDate       *time.Time          `json:"dueDate"`
	IsPaid        bool                `json:"isPaid"`
	LastPaidDate  *time.Time          `json:"lastPaidDate"`
	Transactions  []legacyTransaction `json:"transactions"`
	CreatedAt     time.Time           `json:"createdAt"`
}

type legacyTransaction struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// Encode serializes the whole collection as a current-version envelope.
func Encode(pockets []core.Pocket) ([]byte, error) {
	env := envelope{Version: SchemaVersion, Pockets: make([]pocketRecord, 0, len(pockets))}
	for _, p := range pockets {
		env.Pockets = append(env.Pockets, toRecord(p))
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode pockets: %w", err)
	}
	return b, nil
}

// Decode reads any known schema version, applying read-time defaults for
// fields older records lack. An empty blob decodes to an empty collection.
func Decode(b []byte) ([]core.Pocket, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return []core.Pocket{}, nil
	}

	switch trimmed[0] {
	case '[':
		var legacy []legacyPocket
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return migrateLegacy(legacy), nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if env.Version > SchemaVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
		}
		out := make([]core.Pocket, 0, len(env.Pockets))
		for i, r := range env.Pockets {
			p, err := fromRecord(r)
			if err != nil {
				return nil, fmt.Errorf("%w: pocket %d (%s): %v", ErrCorrupt, i, r.ID, err)
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected leading byte %q", ErrCorrupt, trimmed[0])
	}
}

func toRecord(p core.Pocket) pocketRecord {
	r := pocketRecord{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		CurrentAmount: p.CurrentAmount.Cents,
		DueDate:       p.DueDate,
		IsPaid:        p.IsPaid,
		LastPaidDate:  p.LastPaidDate,
		Transactions:  make([]transactionRecord, 0, len(p.Transactions)),
		CreatedAt:     p.CreatedAt,
	}
	if p.Goal != nil {
		g := p.Goal.Cents
		r.Goal = &g
	}
	for _, t := range p.Transactions {
		r.Transactions = append(r.Transactions, transactionRecord{
			ID:          t.ID,
			Amount:      t.Amount.Cents,
			Type:        t.Type,
			Description: t.Description,
			Date:        t.Date,
		})
	}
	return r
}

// fromRecord converts a stored record. Amounts are stored as magnitudes,
// so a negative goal or transaction amount means the blob is damaged.
func fromRecord(r pocketRecord) (core.Pocket, error) {
	p := core.Pocket{
		ID:            r.ID,
		Name:          r.Name,
		Category:      normalizeCategory(string(r.Category)),
		CurrentAmount: core.Cents(r.CurrentAmount),
		DueDate:       r.DueDate,
		IsPaid:        r.IsPaid,
		LastPaidDate:  r.LastPaidDate,
		Transactions:  make([]core.Transaction, 0, len(r.Transactions)),
		CreatedAt:     r.CreatedAt,
	}
	if r.Goal != nil {
		if *r.Goal < 0 {
			return core.Pocket{}, fmt.Errorf("negative goal %d", *r.Goal)
		}
		g := core.Cents(*r.Goal)
		p.Goal = &g
	}
	for _, t := range r.Transactions {
		if t.Amount < 0 {
			return core.Pocket{}, fmt.Errorf("transaction %s has negative amount %d", t.ID, t.Amount)
		}
		p.Transactions = append(p.Transactions, core.Transaction{
			ID:          t.ID,
			Amount:      core.Cents(t.Amount),
			Type:        normalizeType(string(t.Type)),
			Description: t.Description,
			Date:        t.Date,
		})
	}
	return p, nil
}

// migrateLegacy converts version 1 records. A record that stored no
// balance gets the one its history implies.
func migrateLegacy(in []legacyPocket) []core.Pocket {
	out := make([]core.Pocket, 0, len(in))
	for _, l := range in {
		name := l.Name
		if name == "" {
			name = l.Title
		}
		p := core.Pocket{
			ID:           l.ID,
			Name:         name,
			Category:     normalizeCategory(l.Category),
			DueDate:      l.DueDate,
			IsPaid:       l.IsPaid,
			LastPaidDate: l.LastPaidDate,
			Transactions: make([]core.Transaction, 0, len(l.Transactions)),
			CreatedAt:    l.CreatedAt,
		}
		if l.Goal != nil {
			g := core.FromMajor(*l.Goal)
			p.Goal = &g
		}
		for _, t := range l.Transactions {
			amount := core.FromMajor(t.Amount)
			if amount.IsNegative() {
				amount = amount.Neg()
			}
			p.Transactions = append(p.Transactions, core.Transaction{
				ID:          t.ID,
				Amount:      amount,
				Type:        normalizeType(t.Type),
				Description: t.Description,
				Date:        t.Date,
			})
		}
		switch {
		case l.CurrentAmount != nil:
			p.CurrentAmount = core.FromMajor(*l.CurrentAmount)
		case l.Balance != nil:
			p.CurrentAmount = core.FromMajor(*l.Balance)
		default:
			p.CurrentAmount, _ = p.Reconcile()
		}
		out = append(out, p)
	}
	return out
}

func normalizeCategory(s string) core.Category {
	c, err := core.ParseCategory(s)
	if err != nil {
		return core.CategoryGeneral
	}
	return c
}

func normalizeType(s string) core.TransactionType {
	t := core.TransactionType(s)
	if t.Validate() != nil {
		return core.TxnExpense
	}
	return t
}
