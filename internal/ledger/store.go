// Package ledger owns the pocket collection: an in-memory copy of every
// pocket and its transaction history, persisted as one blob through a
// kv.Store after each mutation.
//
// Mutations are copy-on-write. A working copy of the collection is
// changed, encoded and written; memory is replaced only after the write
// succeeds, so a failed write leaves memory and storage identical.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pockets/internal/core"
	"pockets/internal/kv"
)

// Notice levels understood by notifiers.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Notice is a short user-facing message, the toast of a UI.
type Notice struct {
	Level   string
	Message string
}

// Notifier receives user-facing notices about ledger operations.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// EventPublisher fans out committed mutations. Errors are logged by the
// store and never fail the mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

type (
	// PocketDraft is the input to Add.
	PocketDraft struct {
		Name     string
		Category core.Category
		Goal     *core.Money
		DueDate  *time.Time
	}

	// PocketPatch holds the fields to change in Update. Nil fields are left
	// untouched. Transactions are appended, never substituted.
	PocketPatch struct {
		Name         *string
		Category     *core.Category
		Goal         *core.Money
		DueDate      *time.Time
		IsPaid       *bool
		Transactions []TransactionDraft
	}

	// TransactionDraft is a transaction before the ledger finalizes it.
	// ID and Date are assigned when empty.
	TransactionDraft struct {
		ID          string
		Amount      core.Money
		Type        core.TransactionType
		Description string
		Date        time.Time
	}

	// BillPayment is the outcome of TransferForBillPayment.
	BillPayment struct {
		Bill     core.Pocket
		Source   core.Pocket
		Payment  core.Transaction
		Transfer core.Transaction
	}
)

// Store is the authoritative owner of all pockets.
type Store struct {
	kv  kv.Store
	key string

	mu      sync.RWMutex
	pockets []core.Pocket

	loading atomic.Bool
	version atomic.Uint64

	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	notifier Notifier
	events   EventPublisher
}

type Option func(*Store)

// WithClock overrides the time source. Returned times are normalized to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Store) { s.events = p }
}

// WithKey changes the kv key the collection is stored under.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// New builds a Store over store. Call Load before serving reads.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:      store,
		key:     kv.KeyPockets,
		pockets: []core.Pocket{},
		now:     time.Now,
		newID:   newTimeOrderedID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// Loading reports whether a Load is in progress.
func (s *Store) Loading() bool {
	return s.loading.Load()
}

// Version increases by one with every committed mutation and every Load.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Load replaces the in-memory collection with the persisted one. Missing
// or unreadable data leaves an empty collection: corrupt blobs are
// reported through the notifier and not returned, while adapter failures
// are returned wrapped in core.ErrPersistence.
func (s *Store) Load(ctx context.Context) error {
	s.loading.Store(true)
	defer s.loading.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.pockets = []core.Pocket{}
		s.version.Add(1)
		s.logger.ErrorContext(ctx, "Failed to read pockets", "key", s.key, "error", err)
		s.notify(ctx, LevelError, "Could not load pockets")
		return fmt.Errorf("%w: load pockets: %v", core.ErrPersistence, err)
	}
	if !ok {
		s.pockets = []core.Pocket{}
		s.version.Add(1)
		s.logger.InfoContext(ctx, "No stored pockets, starting empty", "key", s.key)
		return nil
	}

	pockets, err := Decode(raw)
	if err != nil {
		s.pockets = []core.Pocket{}
		s.version.Add(1)
		s.logger.WarnContext(ctx, "Stored pockets are unreadable, starting empty",
			"key", s.key, "bytes", len(raw), "error", err)
		s.notify(ctx, LevelWarning, "Saved pockets were unreadable and have been ignored")
		return nil
	}

	for _, p := range pockets {
		if _, ok := p.Reconcile(); !ok {
			s.logger.WarnContext(ctx, "Pocket balance does not match its history",
				"pocket_id", p.ID, "current_cents", p.CurrentAmount.Cents)
		}
	}

	s.pockets = pockets
	s.version.Add(1)
	s.logger.InfoContext(ctx, "Pockets loaded", "count", len(pockets))
	return nil
}

// Pockets returns a deep copy of the collection.
func (s *Store) Pockets() []core.Pocket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.ClonePockets(s.pockets)
}

// Pocket returns a copy of the pocket with id.
func (s *Store) Pocket(id string) (core.Pocket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.pockets, id)
	if i < 0 {
		return core.Pocket{}, fmt.Errorf("%w: %s", core.ErrPocketNotFound, id)
	}
	return s.pockets[i].Clone(), nil
}

// Transactions flattens every pocket's history.
func (s *Store) Transactions() []core.PocketTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Flatten(s.pockets)
}

// Snapshot returns the collection together with the version it belongs to.
func (s *Store) Snapshot() ([]core.Pocket, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.ClonePockets(s.pockets), s.version.Load()
}

// Add creates a pocket. Expense and saving pockets start at zero, every
// other category starts at its goal.
func (s *Store) Add(ctx context.Context, d PocketDraft) (core.Pocket, error) {
	now := s.clock()
	p := core.Pocket{
		ID:           s.newID(),
		Name:         strings.TrimSpace(d.Name),
		Category:     d.Category,
		Goal:         cloneMoney(d.Goal),
		DueDate:      utcPtr(d.DueDate),
		Transactions: []core.Transaction{},
		CreatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return core.Pocket{}, s.reject(ctx, "add", err)
	}
	p.CurrentAmount = p.InitialAmount()

	err := s.mutate(ctx, "add", func(next []core.Pocket) ([]core.Pocket, error) {
		return append(next, p), nil
	})
	if err != nil {
		return core.Pocket{}, err
	}

	s.logger.InfoContext(ctx, "Pocket created", "pocket_id", p.ID, "category", p.Category,
		"initial_cents", p.CurrentAmount.Cents)
	s.publish(ctx, core.LedgerEvent{Kind: core.EventPocketCreated, PocketIDs: []string{p.ID}})
	return p.Clone(), nil
}

// Update merges patch into the pocket with id. Patch transactions are
// appended and their signed amounts applied. Changing the goal or the
// category rebases the balance by the difference in initial amount.
func (s *Store) Update(ctx context.Context, id string, patch PocketPatch) (core.Pocket, error) {
	var (
		updated core.Pocket
		txnIDs  []string
	)
	err := s.mutate(ctx, "update", func(next []core.Pocket) ([]core.Pocket, error) {
		i := indexOf(next, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrPocketNotFound, id)
		}
		p := next[i]
		before := p.InitialAmount()

		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Goal != nil {
			p.Goal = cloneMoney(patch.Goal)
		}
		if patch.DueDate != nil {
			p.DueDate = utcPtr(patch.DueDate)
		}
		if patch.IsPaid != nil {
			p.IsPaid = *patch.IsPaid
			if p.IsPaid {
				now := s.clock()
				p.LastPaidDate = &now
			}
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		var err error
		if p.CurrentAmount, err = p.CurrentAmount.CheckedAdd(p.InitialAmount().Sub(before)); err != nil {
			return nil, err
		}

		for _, d := range patch.Transactions {
			t, err := s.finalize(d)
			if err != nil {
				return nil, err
			}
			if p.CurrentAmount, err = p.CurrentAmount.CheckedAdd(t.Signed()); err != nil {
				return nil, err
			}
			p.Transactions = append(p.Transactions, t)
			txnIDs = append(txnIDs, t.ID)
		}

		next[i] = p
		updated = p
		return next, nil
	})
	if err != nil {
		return core.Pocket{}, err
	}

	s.logger.InfoContext(ctx, "Pocket updated", "pocket_id", id, "appended", len(txnIDs))
	s.publish(ctx, core.LedgerEvent{Kind: core.EventPocketUpdated, PocketIDs: []string{id}, TransactionIDs: txnIDs})
	return updated.Clone(), nil
}

// Remove deletes the pocket with id. Removing an unknown id succeeds
// without writing.
func (s *Store) Remove(ctx context.Context, id string) error {
	removed := false
	err := s.mutate(ctx, "remove", func(next []core.Pocket) ([]core.Pocket, error) {
		i := indexOf(next, id)
		if i < 0 {
			return nil, errSkipWrite
		}
		removed = true
		return append(next[:i], next[i+1:]...), nil
	})
	if err != nil || !removed {
		return err
	}

	s.logger.InfoContext(ctx, "Pocket removed", "pocket_id", id)
	s.publish(ctx, core.LedgerEvent{Kind: core.EventPocketRemoved, PocketIDs: []string{id}})
	return nil
}

// AddTransaction applies one transaction to a pocket: income adds to the
// balance, expense and payment subtract.
func (s *Store) AddTransaction(ctx context.Context, pocketID string, d TransactionDraft) (core.Transaction, error) {
	var txn core.Transaction
	err := s.mutate(ctx, "add_transaction", func(next []core.Pocket) ([]core.Pocket, error) {
		i := indexOf(next, pocketID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrPocketNotFound, pocketID)
		}
		t, err := s.finalize(d)
		if err != nil {
			return nil, err
		}
		p := next[i]
		if p.CurrentAmount, err = p.CurrentAmount.CheckedAdd(t.Signed()); err != nil {
			return nil, err
		}
		p.Transactions = append(p.Transactions, t)
		next[i] = p
		txn = t
		return next, nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction added", "pocket_id", pocketID, "transaction_id", txn.ID,
		"type", txn.Type, "amount_cents", txn.Amount.Cents)
	s.publish(ctx, core.LedgerEvent{
		Kind:           core.EventTransactionAdded,
		PocketIDs:      []string{pocketID},
		TransactionIDs: []string{txn.ID},
	})
	return txn, nil
}

// TransferForBillPayment pays the bill's goal out of the source pocket.
// Both pockets change in a single write or neither changes.
func (s *Store) TransferForBillPayment(ctx context.Context, billID, sourceID string) (BillPayment, error) {
	var out BillPayment
	err := s.mutate(ctx, "pay_bill", func(next []core.Pocket) ([]core.Pocket, error) {
		bi := indexOf(next, billID)
		if bi < 0 {
			return nil, fmt.Errorf("%w: bill %s", core.ErrPocketNotFound, billID)
		}
		si := indexOf(next, sourceID)
		if si < 0 {
			return nil, fmt.Errorf("%w: source %s", core.ErrPocketNotFound, sourceID)
		}
		bill, src := next[bi], next[si]
		switch {
		case !bill.IsBill():
			return nil, core.ErrNotABill
		case bi == si:
			return nil, core.ErrSamePocket
		case bill.IsPaid:
			return nil, core.ErrAlreadyPaid
		}
		due := bill.GoalAmount()
		if due.IsZero() {
			return nil, fmt.Errorf("%w: bill has no amount due", core.ErrInvalidAmount)
		}
		if src.CurrentAmount.LessThan(due) {
			return nil, fmt.Errorf("%w: %s available, %s due", core.ErrInsufficientFunds,
				src.CurrentAmount, due)
		}

		now := s.clock()
		payment := core.Transaction{
			ID:          s.newID(),
			Amount:      due,
			Type:        core.TxnPayment,
			Description: "Payment for " + bill.Name,
			Date:        now,
		}
		transfer := core.Transaction{
			ID:          s.newID(),
			Amount:      due,
			Type:        core.TxnExpense,
			Description: "Paid bill " + bill.Name,
			Date:        now,
		}

		var err error
		if bill.CurrentAmount, err = bill.CurrentAmount.CheckedAdd(payment.Signed()); err != nil {
			return nil, err
		}
		if src.CurrentAmount, err = src.CurrentAmount.CheckedAdd(transfer.Signed()); err != nil {
			return nil, err
		}
		bill.Transactions = append(bill.Transactions, payment)
		src.Transactions = append(src.Transactions, transfer)
		bill.IsPaid = true
		bill.LastPaidDate = &now

		next[bi], next[si] = bill, src
		out = BillPayment{Bill: bill.Clone(), Source: src.Clone(), Payment: payment, Transfer: transfer}
		return next, nil
	})
	if err != nil {
		return BillPayment{}, err
	}

	s.logger.InfoContext(ctx, "Bill paid", "bill_id", billID, "source_id", sourceID,
		"amount_cents", out.Payment.Amount.Cents)
	s.notify(ctx, LevelSuccess, fmt.Sprintf("%s paid", out.Bill.Name))
	s.publish(ctx, core.LedgerEvent{
		Kind:           core.EventBillPaid,
		PocketIDs:      []string{billID, sourceID},
		TransactionIDs: []string{out.Payment.ID, out.Transfer.ID},
	})
	return out, nil
}

// Reset wipes every key of the persistence adapter, including reminder
// settings, and empties the collection.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.ClearAll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear storage", "error", err)
		s.notify(ctx, LevelError, "Could not reset data")
		return fmt.Errorf("%w: clear all: %v", core.ErrPersistence, err)
	}
	s.pockets = []core.Pocket{}
	v := s.version.Add(1)

	s.logger.InfoContext(ctx, "Ledger reset")
	s.publishAt(ctx, core.LedgerEvent{Kind: core.EventLedgerReset}, v)
	return nil
}

// errSkipWrite aborts a mutation without an error or a write.
var errSkipWrite = errors.New("skip write")

// mutate runs fn against a deep copy of the collection, persists the
// result and only then commits it to memory.
func (s *Store) mutate(ctx context.Context, op string, fn func([]core.Pocket) ([]core.Pocket, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(core.ClonePockets(s.pockets))
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return s.reject(ctx, op, err)
	}

	b, err := Encode(next)
	if err != nil {
		return s.reject(ctx, op, fmt.Errorf("%w: %v", core.ErrPersistence, err))
	}
	if err := s.kv.Set(ctx, s.key, b); err != nil {
		return s.reject(ctx, op, fmt.Errorf("%w: save pockets: %v", core.ErrPersistence, err))
	}

	s.pockets = next
	s.version.Add(1)
	return nil
}

// reject logs a failed operation and reports it through the notifier.
func (s *Store) reject(ctx context.Context, op string, err error) error {
	kind := core.Kind(err)
	if kind == "persistence" || kind == "internal" {
		s.logger.ErrorContext(ctx, "Ledger operation failed", "operation", op, "error", err)
	} else {
		s.logger.WarnContext(ctx, "Ledger operation rejected", "operation", op, "kind", kind, "error", err)
	}
	s.notify(ctx, LevelError, userMessage(op, err))
	return err
}

func userMessage(op string, err error) string {
	switch {
	case errors.Is(err, core.ErrInsufficientFunds):
		return "Insufficient funds for this payment"
	case errors.Is(err, core.ErrAlreadyPaid):
		return "This bill has already been paid"
	case errors.Is(err, core.ErrNotFound):
		return "Pocket not found"
	case errors.Is(err, core.ErrValidation):
		return strings.TrimPrefix(err.Error(), core.ErrValidation.Error()+": ")
	case errors.Is(err, core.ErrPersistence):
		return "Could not save your changes"
	default:
		return "Operation " + op + " failed"
	}
}

func (s *Store) notify(ctx context.Context, level, msg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Notice{Level: level, Message: msg})
}

func (s *Store) publish(ctx context.Context, ev core.LedgerEvent) {
	s.publishAt(ctx, ev, s.version.Load())
}

func (s *Store) publishAt(ctx context.Context, ev core.LedgerEvent, version uint64) {
	if s.events == nil {
		return
	}
	ev.Version = version
	ev.Timestamp = s.clock()
	if err := s.events.PublishLedgerEvent(ctx, ev); err != nil {
		// Local write already succeeded.
		s.logger.ErrorContext(ctx, "Failed to publish ledger event", "kind", ev.Kind, "error", err)
	}
}

// finalize validates a draft and assigns its id and date.
func (s *Store) finalize(d TransactionDraft) (core.Transaction, error) {
	t := core.Transaction{
		ID:          d.ID,
		Amount:      d.Amount,
		Type:        d.Type,
		Description: strings.TrimSpace(d.Description),
		Date:        d.Date.UTC(),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = s.newID()
	}
	if d.Date.IsZero() {
		t.Date = s.clock()
	}
	return t, nil
}

func indexOf(pockets []core.Pocket, id string) int {
	for i := range pockets {
		if pockets[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMoney(m *core.Money) *core.Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
