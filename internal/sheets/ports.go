package sheets

import (
	"context"
	"sort"
	"time"

	"pockets/internal/core"
)

// ExportRow is one transaction as it appears in an exported spreadsheet.
type ExportRow struct {
	TransactionID string
	Date          time.Time
	Pocket        string
	Category      core.Category
	Type          core.TransactionType
	Description   string
	Amount        core.Money
}

// Ports for outbound adapters.
type (
	TransactionExporter interface {
		// AppendTransactions appends rows and returns a reference to the
		// written range.
		AppendTransactions(ctx context.Context, rows []ExportRow) (ref string, err error)
	}

	// ExportedIDReader lists transaction ids already present in the export
	// for a year, so restarts do not duplicate rows.
	ExportedIDReader interface {
		ExportedIDs(ctx context.Context, year int) (map[string]struct{}, error)
	}
)

// RowsFor builds export rows for the given transaction ids, ordered by
// date then id. Ids not found in pockets are skipped.
func RowsFor(pockets []core.Pocket, txnIDs []string) []ExportRow {
	want := make(map[string]struct{}, len(txnIDs))
	for _, id := range txnIDs {
		want[id] = struct{}{}
	}

	var rows []ExportRow
	for _, pt := range core.Flatten(pockets) {
		if _, ok := want[pt.Transaction.ID]; !ok {
			continue
		}
		rows = append(rows, ExportRow{
			TransactionID: pt.Transaction.ID,
			Date:          pt.Transaction.Date,
			Pocket:        pt.PocketName,
			Category:      pt.Category,
			Type:          pt.Transaction.Type,
			Description:   pt.Transaction.Description,
			Amount:        pt.Transaction.Amount,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].TransactionID < rows[j].TransactionID
	})
	return rows
}
