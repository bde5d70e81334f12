// Package memory provides an in-process transaction exporter for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "pockets/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows []ports.ExportRow
	fail error
}

var (
	_ ports.TransactionExporter = (*Exporter)(nil)
	_ ports.ExportedIDReader    = (*Exporter)(nil)
)

func New() *Exporter {
	return &Exporter{}
}

// FailWith makes AppendTransactions return err until called with nil.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

// AppendTransactions stores the rows and returns a synthetic row reference.
func (e *Exporter) AppendTransactions(_ context.Context, rows []ports.ExportRow) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return "", e.fail
	}
	start := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", start, len(e.rows)), nil
}

func (e *Exporter) ExportedIDs(_ context.Context, year int) (map[string]struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]struct{})
	for _, r := range e.rows {
		if r.Date.UTC().Year() == year {
			out[r.TransactionID] = struct{}{}
		}
	}
	return out, nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() []ports.ExportRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.ExportRow(nil), e.rows...)
}
