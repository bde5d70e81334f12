package google

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"pockets/internal/core"
	ports "pockets/internal/sheets"
)

// Column layout: Date, Pocket, Category, Type, Description, Amount,
// Formatted amount, Transaction id.
const idColumn = "H"

type yearGroup struct {
	year int
	rows []ports.ExportRow
}

func groupByYear(rows []ports.ExportRow) []yearGroup {
	byYear := map[int][]ports.ExportRow{}
	for _, r := range rows {
		y := r.Date.UTC().Year()
		byYear[y] = append(byYear[y], r)
	}
	out := make([]yearGroup, 0, len(byYear))
	for y, rs := range byYear {
		out = append(out, yearGroup{year: y, rows: rs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].year < out[j].year })
	return out
}

func rowValues(r ports.ExportRow, currency string) []any {
	signed := r.Amount
	if r.Type != core.TxnIncome {
		signed = signed.Neg()
	}
	return []any{
		r.Date.UTC().Format(time.DateOnly),
		r.Pocket,
		string(r.Category),
		string(r.Type),
		r.Description,
		signed.Major(),
		signed.Format(currency),
		r.TransactionID,
	}
}

// parseIDColumn collects non-empty ids, skipping a header row and
// comment cells.
func parseIDColumn(values [][]any) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.HasPrefix(v, "#") || strings.EqualFold(v, "id") || strings.EqualFold(v, "transaction id") {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
