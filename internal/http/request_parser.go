// This file implements parsing and validation of request bodies and query
// parameters into ledger inputs.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pockets/internal/core"
	"pockets/internal/ledger"
)

const maxBodyBytes = 64 << 10

// requestError is a malformed request, as opposed to a ledger rejection.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(status int, format string, args ...any) error {
	return &requestError{status: status, msg: fmt.Sprintf(format, args...)}
}

type (
	createPocketRequest struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		Goal     string `json:"goal"`
		DueDate  string `json:"due_date"`
	}

	updatePocketRequest struct {
		Name         *string              `json:"name"`
		Category     *string              `json:"category"`
		Goal         *string              `json:"goal"`
		DueDate      *string              `json:"due_date"`
		IsPaid       *bool                `json:"is_paid"`
		Transactions []transactionRequest `json:"transactions"`
	}

	transactionRequest struct {
		Amount      string `json:"amount"`
		Type        string `json:"type"`
		Description string `json:"description"`
		Date        string `json:"date"`
	}

	payBillRequest struct {
		SourceID string `json:"source_id"`
	}
)

// decodeJSON reads a single JSON object from the body into v. Unknown
// fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return badRequest(http.StatusUnsupportedMediaType, "content type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest(http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			return badRequest(http.StatusBadRequest, "request body is empty")
		default:
			return badRequest(http.StatusBadRequest, "invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest(http.StatusBadRequest, "request body must contain a single JSON object")
	}
	return nil
}

func (req createPocketRequest) draft() (ledger.PocketDraft, error) {
	d := ledger.PocketDraft{Name: sanitizeInput(req.Name), Category: core.CategoryGeneral}
	if strings.TrimSpace(req.Category) != "" {
		c, err := core.ParseCategory(req.Category)
		if err != nil {
			return d, err
		}
		d.Category = c
	}
	goal, err := parseGoal(req.Goal)
	if err != nil {
		return d, err
	}
	d.Goal = goal
	if d.DueDate, err = parseOptionalDate(req.DueDate); err != nil {
		return d, err
	}
	return d, nil
}

func (req updatePocketRequest) patch() (ledger.PocketPatch, error) {
	var p ledger.PocketPatch
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Category != nil {
		c, err := core.ParseCategory(*req.Category)
		if err != nil {
			return p, err
		}
		p.Category = &c
	}
	if req.Goal != nil {
		goal, err := parseGoal(*req.Goal)
		if err != nil {
			return p, err
		}
		if goal == nil {
			zero := core.Money{}
			goal = &zero
		}
		p.Goal = goal
	}
	if req.DueDate != nil {
		due, err := parseOptionalDate(*req.DueDate)
		if err != nil {
			return p, err
		}
		p.DueDate = due
	}
	p.IsPaid = req.IsPaid
	for _, t := range req.Transactions {
		d, err := t.draft()
		if err != nil {
			return p, err
		}
		p.Transactions = append(p.Transactions, d)
	}
	return p, nil
}

func (req transactionRequest) draft() (ledger.TransactionDraft, error) {
	var d ledger.TransactionDraft
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return d, err
	}
	d.Amount = amount
	d.Type = core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type)))
	if d.Type == "" {
		d.Type = core.TxnExpense
	}
	d.Description = sanitizeInput(req.Description)
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return d, err
		}
		d.Date = date
	}
	return d, nil
}

// parseGoal accepts an empty string (no goal), "0" or a positive amount.
func parseGoal(s string) (*core.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Trim(s, "0.,") == "" {
		return &core.Money{}, nil
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return nil, core.ErrInvalidGoal
	}
	return &m, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", core.ErrValidation, s)
	}
	return t.UTC(), nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month from query parameters, using
// now as the default. Out of range values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			return params, badRequest(http.StatusBadRequest, "invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return params, badRequest(http.StatusBadRequest, "invalid month %q", v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// ParseDays reads a non-negative day count, bounded to a year.
func ParseDays(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("days"))
	if v == "" {
		return def, nil
	}
	d, err := strconv.Atoi(v)
	if err != nil || d < 0 || d > 365 {
		return 0, badRequest(http.StatusBadRequest, "invalid days %q", v)
	}
	return d, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
