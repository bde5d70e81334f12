package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pockets/internal/core"
	"pockets/internal/sheets"
)

// LedgerReader is the part of *ledger.Store the worker needs. Load is
// called before every export because another process owns the writes.
type LedgerReader interface {
	Load(ctx context.Context) error
	Pockets() []core.Pocket
}

// ExportWorker copies ledger transactions to a spreadsheet. Each
// transaction id is exported at most once per worker lifetime; the
// exporter's existing ids seed that set at startup.
type ExportWorker struct {
	ledger   LedgerReader
	exporter sheets.TransactionExporter
	ids      sheets.ExportedIDReader
	now      func() time.Time

	mu       sync.Mutex
	exported map[string]struct{}
}

// NewExportWorker builds a worker. ids may be nil.
func NewExportWorker(ledger LedgerReader, exporter sheets.TransactionExporter, ids sheets.ExportedIDReader) *ExportWorker {
	return &ExportWorker{
		ledger:   ledger,
		exporter: exporter,
		ids:      ids,
		now:      time.Now,
		exported: make(map[string]struct{}),
	}
}

// HandleLedgerEvent exports the transactions an event names. Events
// without transactions are acknowledged without work.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	if len(ev.TransactionIDs) == 0 {
		slog.DebugContext(ctx, "Ledger event carries no transactions", "kind", ev.Kind)
		return nil
	}
	if err := w.ledger.Load(ctx); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	return w.export(ctx, ev.TransactionIDs)
}

// StartupSyncCheck exports every transaction missing from the export.
// It recovers from missed messages or worker downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	if w.ids != nil {
		year := w.now().UTC().Year()
		ids, err := w.ids.ExportedIDs(ctx, year)
		if err != nil {
			slog.WarnContext(ctx, "Could not read exported ids, exporting may duplicate rows", "year", year, "error", err)
		} else {
			w.mu.Lock()
			for id := range ids {
				w.exported[id] = struct{}{}
			}
			w.mu.Unlock()
			slog.InfoContext(ctx, "Seeded exported ids", "year", year, "count", len(ids))
		}
	}
	return w.ProcessPending(ctx)
}

// ProcessPending reloads the ledger and exports anything not yet exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	if err := w.ledger.Load(ctx); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	var ids []string
	for _, pt := range core.Flatten(w.ledger.Pockets()) {
		ids = append(ids, pt.Transaction.ID)
	}
	return w.export(ctx, ids)
}

func (w *ExportWorker) export(ctx context.Context, ids []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, done := w.exported[id]; !done {
			pending = append(pending, id)
		}
	}
	rows := sheets.RowsFor(w.ledger.Pockets(), pending)
	if len(rows) == 0 {
		return nil
	}

	ref, err := w.exporter.AppendTransactions(ctx, rows)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	for _, r := range rows {
		w.exported[r.TransactionID] = struct{}{}
	}

	slog.InfoContext(ctx, "Successfully exported transactions",
		"count", len(rows),
		"sheets_ref", ref)
	return nil
}

// Exported reports how many transactions this worker knows are exported.
func (w *ExportWorker) Exported() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.exported)
}
