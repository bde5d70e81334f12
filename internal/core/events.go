package core

import "time"

const (
	EventPocketCreated    EventKind = "pocket.created"
	EventPocketUpdated    EventKind = "pocket.updated"
	EventPocketRemoved    EventKind = "pocket.removed"
	EventTransactionAdded EventKind = "transaction.added"
	EventBillPaid         EventKind = "bill.paid"
	EventLedgerReset      EventKind = "ledger.reset"
)

type EventKind string

// LedgerEvent describes a committed ledger mutation. It carries ids only;
// consumers re-read the ledger for the current state.
type LedgerEvent struct {
	Kind           EventKind `json:"kind"`
	PocketIDs      []string  `json:"pocket_ids,omitempty"`
	TransactionIDs []string  `json:"transaction_ids,omitempty"`
	Version        uint64    `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
}

// BillReminder is emitted when a reminder rule fires for an unpaid bill.
type BillReminder struct {
	BillID    string    `json:"bill_id"`
	BillName  string    `json:"bill_name"`
	Amount    Money     `json:"amount"`
	DueDate   time.Time `json:"due_date"`
	Rule      string    `json:"rule"`
	DaysUntil int       `json:"days_until"`
	Timestamp time.Time `json:"timestamp"`
}
