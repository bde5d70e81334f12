package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pockets/internal/ledger"
	"pockets/internal/notify"
	"pockets/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type apiResponse struct {
	Data         json.RawMessage `json:"data"`
	Error        *APIError       `json:"error"`
	Notification *Notification   `json:"notification"`
}

type testServer struct {
	srv *Server
	kv  *memory.Store
}

func newTestServer(t *testing.T, mutate func(*Options)) testServer {
	t.Helper()
	return newTestServerOn(t, memory.New(), mutate)
}

// newTestServerOn builds a test server whose ledger persists to kv.
func newTestServerOn(t *testing.T, kv *memory.Store, mutate func(*Options)) testServer {
	t.Helper()
	n := 0
	store := ledger.New(kv,
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
		ledger.WithNotifier(RequestNotifier{}),
	)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := Options{RateLimit: 1000, Now: func() time.Time { return testNow }}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(":0", store, opts)
	t.Cleanup(srv.limiter.Stop)
	return testServer{srv: srv, kv: kv}
}

func (ts testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)

	var resp apiResponse
	if rr.Code != http.StatusNoContent && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr, resp
}

func (ts testServer) createPocket(t *testing.T, body string) pocketView {
	t.Helper()
	rr, resp := ts.do(t, http.MethodPost, "/pockets", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create pocket status = %d, body %s", rr.Code, rr.Body.String())
	}
	var p pocketView
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatalf("decode pocket: %v", err)
	}
	return p
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	rr, _ := ts.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rr, _ = ts.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rr.Code)
	}

	down := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("database locked") }
	})
	rr, _ = down.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check status = %d, want 503", rr.Code)
	}
}

func TestCreateAndGetPocket(t *testing.T) {
	ts := newTestServer(t, nil)

	rr, resp := ts.do(t, http.MethodPost, "/pockets", `{"name":"Food","category":"expense"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/pockets/id-001" {
		t.Errorf("Location = %q", loc)
	}
	if resp.Notification == nil || resp.Notification.Type != NotificationSuccess {
		t.Errorf("notification = %+v", resp.Notification)
	}

	rr, resp = ts.do(t, http.MethodGet, "/pockets/id-001", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var p pocketView
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "Food" || p.Category != "expense" || p.CurrentAmount.Cents != 0 {
		t.Fatalf("pocket = %+v", p)
	}
}

func TestExpenseTransactionUpdatesBalance(t *testing.T) {
	ts := newTestServer(t, nil)
	food := ts.createPocket(t, `{"name":"Food","category":"expense"}`)

	rr, resp := ts.do(t, http.MethodPost, "/pockets/"+food.ID+"/transactions",
		`{"amount":"100.00","type":"expense","description":"groceries","date":"2024-03-14"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var txn transactionView
	if err := json.Unmarshal(resp.Data, &txn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if txn.Amount.Cents != 10000 || txn.Type != "expense" || !txn.Date.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("transaction = %+v", txn)
	}

	_, resp = ts.do(t, http.MethodGet, "/pockets/"+food.ID, "")
	var p pocketView
	_ = json.Unmarshal(resp.Data, &p)
	if p.CurrentAmount.Cents != -10000 || len(p.Transactions) != 1 {
		t.Fatalf("pocket after expense = %+v", p)
	}

	rr, resp = ts.do(t, http.MethodGet, "/transactions", "")
	var txns []transactionView
	_ = json.Unmarshal(resp.Data, &txns)
	if rr.Code != http.StatusOK || len(txns) != 1 || txns[0].PocketName != "Food" {
		t.Fatalf("transactions = %+v", txns)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"empty name", http.MethodPost, "/pockets", `{"name":"  "}`, http.StatusUnprocessableEntity, "validation"},
		{"unknown category", http.MethodPost, "/pockets", `{"name":"X","category":"misc"}`, http.StatusUnprocessableEntity, "validation"},
		{"malformed json", http.MethodPost, "/pockets", `{"name":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, "/pockets", `{"title":"X"}`, http.StatusBadRequest, "bad_request"},
		{"missing pocket", http.MethodGet, "/pockets/nope", "", http.StatusNotFound, "not_found"},
		{"txn on missing pocket", http.MethodPost, "/pockets/nope/transactions", `{"amount":"1"}`, http.StatusNotFound, "not_found"},
		{"zero amount", http.MethodPost, "/pockets/nope/transactions", `{"amount":"0"}`, http.StatusUnprocessableEntity, "validation"},
		{"bad month", http.MethodGet, "/reports/month?month=13", "", http.StatusBadRequest, "bad_request"},
		{"bad days", http.MethodGet, "/reports/upcoming-bills?days=-1", "", http.StatusBadRequest, "bad_request"},
		{"unknown route", http.MethodGet, "/nowhere", "", http.StatusNotFound, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := ts.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if resp.Error == nil || resp.Error.Kind != tt.wantKind {
				t.Fatalf("error = %+v, want kind %s", resp.Error, tt.wantKind)
			}
			if resp.Notification == nil || resp.Notification.Type != NotificationError {
				t.Fatalf("notification = %+v", resp.Notification)
			}
		})
	}
}

func TestPersistenceFailureIs503(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.kv.FailWrites(errors.New("disk full"))

	rr, resp := ts.do(t, http.MethodPost, "/pockets", `{"name":"Food"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if resp.Error.Kind != "persistence" || strings.Contains(resp.Error.Message, "disk full") {
		t.Fatalf("error = %+v", resp.Error)
	}
	if resp.Notification == nil || resp.Notification.Message != "Could not save your changes" {
		t.Fatalf("notification = %+v", resp.Notification)
	}

	ts.kv.FailWrites(nil)
	_, resp = ts.do(t, http.MethodGet, "/pockets", "")
	if string(resp.Data) != "[]" {
		t.Fatalf("failed write leaked into memory: %s", resp.Data)
	}
}

func TestPayBill(t *testing.T) {
	ts := newTestServer(t, nil)
	src := ts.createPocket(t, `{"name":"Checking","category":"general","goal":"500"}`)
	bill := ts.createPocket(t, `{"name":"Rent","category":"bills","goal":"200","due_date":"2024-03-20"}`)

	rr, resp := ts.do(t, http.MethodPost, "/bills/"+bill.ID+"/pay", fmt.Sprintf(`{"source_id":%q}`, src.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var out billPaymentView
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Bill.IsPaid || out.Source.CurrentAmount.Cents != 30000 {
		t.Fatalf("payment = %+v", out)
	}
	if resp.Notification == nil || resp.Notification.Message != "Rent paid" {
		t.Fatalf("notification = %+v", resp.Notification)
	}

	rr, resp = ts.do(t, http.MethodPost, "/bills/"+bill.ID+"/pay", fmt.Sprintf(`{"source_id":%q}`, src.ID))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second payment status = %d", rr.Code)
	}
	if resp.Notification.Message != "This bill has already been paid" {
		t.Fatalf("notification = %+v", resp.Notification)
	}

	rr, _ = ts.do(t, http.MethodPost, "/bills/"+bill.ID+"/pay", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing source status = %d", rr.Code)
	}
}

func TestPayBillInsufficientFunds(t *testing.T) {
	ts := newTestServer(t, nil)
	src := ts.createPocket(t, `{"name":"Wallet","category":"general","goal":"50"}`)
	bill := ts.createPocket(t, `{"name":"Rent","category":"bills","goal":"200"}`)

	rr, resp := ts.do(t, http.MethodPost, "/bills/"+bill.ID+"/pay", fmt.Sprintf(`{"source_id":%q}`, src.ID))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp.Notification == nil || resp.Notification.Message != "Insufficient funds for this payment" {
		t.Fatalf("notification = %+v", resp.Notification)
	}
}

func TestUpdateAndDeletePocket(t *testing.T) {
	ts := newTestServer(t, nil)
	p := ts.createPocket(t, `{"name":"Trip","category":"saving","goal":"1000"}`)

	rr, resp := ts.do(t, http.MethodPatch, "/pockets/"+p.ID,
		`{"name":"Japan trip","transactions":[{"amount":"250","type":"income","description":"bonus"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got pocketView
	_ = json.Unmarshal(resp.Data, &got)
	if got.Name != "Japan trip" || got.CurrentAmount.Cents != 25000 || len(got.Transactions) != 1 {
		t.Fatalf("patched pocket = %+v", got)
	}

	rr, _ = ts.do(t, http.MethodDelete, "/pockets/"+p.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr, _ = ts.do(t, http.MethodDelete, "/pockets/"+p.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("second delete status = %d, want idempotent 204", rr.Code)
	}
}

func TestReportsAreCachedByVersion(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createPocket(t, `{"name":"Checking","goal":"100"}`)

	rr, resp := ts.do(t, http.MethodGet, "/reports/summary", "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first X-Cache = %q", rr.Header().Get("X-Cache"))
	}
	var sum summaryView
	_ = json.Unmarshal(resp.Data, &sum)
	if sum.Total.Cents != 10000 || sum.PocketCount != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	rr, _ = ts.do(t, http.MethodGet, "/reports/summary", "")
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second X-Cache = %q", rr.Header().Get("X-Cache"))
	}

	ts.createPocket(t, `{"name":"Savings","category":"saving"}`)
	rr, resp = ts.do(t, http.MethodGet, "/reports/summary", "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("after mutation X-Cache = %q", rr.Header().Get("X-Cache"))
	}
	_ = json.Unmarshal(resp.Data, &sum)
	if sum.PocketCount != 2 {
		t.Fatalf("stale summary = %+v", sum)
	}
}

func TestSpendingAndMonthReports(t *testing.T) {
	ts := newTestServer(t, nil)
	food := ts.createPocket(t, `{"name":"Food","category":"expense"}`)
	fun := ts.createPocket(t, `{"name":"Fun","category":"expense"}`)
	ts.do(t, http.MethodPost, "/pockets/"+food.ID+"/transactions", `{"amount":"30","date":"2024-03-02"}`)
	ts.do(t, http.MethodPost, "/pockets/"+fun.ID+"/transactions", `{"amount":"10","date":"2024-03-03"}`)
	ts.do(t, http.MethodPost, "/pockets/"+fun.ID+"/transactions", `{"amount":"5","type":"income","date":"2024-02-03"}`)

	_, resp := ts.do(t, http.MethodGet, "/reports/spending", "")
	var shares []struct {
		Name       string `json:"name"`
		Amount     int64  `json:"amount"`
		Percentage string `json:"percentage"`
	}
	if err := json.Unmarshal(resp.Data, &shares); err != nil {
		t.Fatalf("decode spending: %v (%s)", err, resp.Data)
	}
	if len(shares) != 2 || shares[0].Name != "Food" || shares[0].Percentage != "75" {
		t.Fatalf("spending = %+v", shares)
	}

	_, resp = ts.do(t, http.MethodGet, "/reports/month?year=2024&month=3", "")
	var month struct {
		Expenses int64 `json:"expenses"`
		Income   int64 `json:"income"`
		Count    int   `json:"count"`
	}
	_ = json.Unmarshal(resp.Data, &month)
	if month.Expenses != 4000 || month.Income != 0 || month.Count != 2 {
		t.Fatalf("month = %+v", month)
	}
}

func TestUpcomingBills(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createPocket(t, `{"name":"Rent","category":"bills","goal":"200","due_date":"2024-03-18"}`)
	ts.createPocket(t, `{"name":"Gym","category":"bills","goal":"30","due_date":"2024-03-01"}`)
	ts.createPocket(t, `{"name":"Tax","category":"bills","goal":"900","due_date":"2024-06-01"}`)

	rr, resp := ts.do(t, http.MethodGet, "/reports/upcoming-bills?days=7", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var v upcomingView
	_ = json.Unmarshal(resp.Data, &v)
	if len(v.Upcoming) != 1 || v.Upcoming[0].Name != "Rent" {
		t.Fatalf("upcoming = %+v", v.Upcoming)
	}
	if len(v.Overdue) != 1 || v.Overdue[0].Name != "Gym" {
		t.Fatalf("overdue = %+v", v.Overdue)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createPocket(t, `{"name":"Food"}`)

	rr, _ := ts.do(t, http.MethodDelete, "/pockets", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed reset status = %d", rr.Code)
	}
	rr, _ = ts.do(t, http.MethodDelete, "/pockets?confirm=reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}
	_, resp := ts.do(t, http.MethodGet, "/pockets", "")
	if string(resp.Data) != "[]" {
		t.Fatalf("pockets after reset = %s", resp.Data)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rr, _ := ts.do(t, http.MethodGet, "/pockets", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr, resp := ts.do(t, http.MethodGet, "/pockets", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d, Retry-After %q", rr.Code, rr.Header().Get("Retry-After"))
	}
	if resp.Error == nil {
		t.Fatal("expected error body")
	}
	if rr, _ := ts.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("health checks must not be rate limited, got %d", rr.Code)
	}
}

func TestRateLimit_Writes(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.RateLimit = 10; o.WriteRateLimit = 1 })

	if rr, _ := ts.do(t, http.MethodPost, "/pockets", `{"name":"Rent","category":"bills"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first write status = %d", rr.Code)
	}
	if rr, _ := ts.do(t, http.MethodPost, "/pockets", `{"name":"Gym","category":"bills"}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status = %d, want 429", rr.Code)
	}
	if rr, _ := ts.do(t, http.MethodGet, "/pockets", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads should still pass, got %d", rr.Code)
	}
}

func TestNotificationSettings(t *testing.T) {
	svc := notify.NewService(memory.New(), nil, notify.LogDispatcher{}, nil)
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ts := newTestServer(t, func(o *Options) { o.Settings = svc })

	rr, _ := ts.do(t, http.MethodGet, "/notifications/settings", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get settings status = %d", rr.Code)
	}

	rr, _ = ts.do(t, http.MethodPut, "/notifications/settings", `{"enabled":true,"rules":["fortnight"]}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid rule status = %d", rr.Code)
	}

	rr, _ = ts.do(t, http.MethodPut, "/notifications/settings", `{"enabled":false,"rules":["due"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}
	got, _ := svc.Settings()
	if got.Enabled || len(got.Rules) != 1 {
		t.Fatalf("settings = %+v", got)
	}
}

func TestResetRestoresDefaultReminderSettings(t *testing.T) {
	ctx := context.Background()
	kvs := memory.New()
	svc := notify.NewService(kvs, nil, notify.LogDispatcher{}, nil)
	if err := svc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ts := newTestServerOn(t, kvs, func(o *Options) { o.Settings = svc })

	if rr, _ := ts.do(t, http.MethodPut, "/notifications/settings", `{"enabled":false,"rules":["due"]}`); rr.Code != http.StatusOK {
		t.Fatalf("update status = %d", rr.Code)
	}
	if rr, _ := ts.do(t, http.MethodDelete, "/pockets?confirm=reset", ""); rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}

	served, err := svc.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	// A worker reads the settings from storage on its next tick.
	worker := notify.NewService(kvs, nil, notify.LogDispatcher{}, nil)
	if err := worker.Initialize(ctx); err != nil {
		t.Fatalf("worker Initialize: %v", err)
	}
	stored, _ := worker.Settings()

	want := notify.DefaultSettings()
	for name, got := range map[string]notify.Settings{"server": served, "worker": stored} {
		if got.Enabled != want.Enabled || strings.Join(got.Rules, ",") != strings.Join(want.Rules, ",") {
			t.Errorf("%s settings after reset = %+v, want %+v", name, got, want)
		}
	}
}
