package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"pockets/internal/core"
)

func newBufferLogger(t *testing.T, component string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(Config{
		Component: component,
		Handler:   slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return rec
}

func TestLogger_ComponentTag(t *testing.T) {
	logger, buf := newBufferLogger(t, ComponentHTTP)

	logger.Info("hello", "k", "v")
	rec := lastRecord(t, buf)
	if rec[FieldComponent] != ComponentHTTP || rec["k"] != "v" {
		t.Errorf("unexpected record %v", rec)
	}

	logger.With("request_id", "r1").WithComponent(ComponentLedger).Warn("switched")
	rec = lastRecord(t, buf)
	if rec[FieldComponent] != ComponentLedger || rec["request_id"] != "r1" {
		t.Errorf("component swap lost attributes: %v", rec)
	}
}

func TestLogger_SlogCarriesComponent(t *testing.T) {
	logger, buf := newBufferLogger(t, ComponentWorker)
	logger.Slog().Info("plain")
	if rec := lastRecord(t, buf); rec[FieldComponent] != ComponentWorker {
		t.Errorf("expected component on plain slog logger, got %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	logger, _ := newBufferLogger(t, ComponentApp)
	if got := FromContext(NewContext(context.Background(), logger)); got != logger {
		t.Error("expected the stored logger")
	}
	if got := FromContext(context.Background()); got == nil || got.component != "unknown" {
		t.Errorf("expected fallback logger, got %+v", got)
	}
}

func TestStructuredLogger_HTTPEndLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, ComponentHTTP)
	sl := NewStructuredLogger(logger)
	r := httptest.NewRequest("GET", "/pockets?category=bills", nil)

	for status, level := range map[int]string{200: "INFO", 404: "WARN", 503: "ERROR"} {
		sl.LogHTTPEnd(context.Background(), r, status, 3, "10.0.0.1")
		rec := lastRecord(t, buf)
		if rec["level"] != level {
			t.Errorf("status %d logged at %v, want %s", status, rec["level"], level)
		}
		if rec[FieldQuery] != "category=bills" {
			t.Errorf("missing query field: %v", rec)
		}
	}
}

func TestStructuredLogger_LogMutation(t *testing.T) {
	logger, buf := newBufferLogger(t, ComponentHTTP)
	sl := NewStructuredLogger(logger)
	pocket := NewFields().WithPocket("p1", "Rent", core.CategoryBills)

	sl.LogMutation(context.Background(), OpPay, pocket, 7, nil)
	rec := lastRecord(t, buf)
	if rec["level"] != "INFO" || rec[FieldPocketID] != "p1" || rec[FieldVersion] != float64(7) {
		t.Errorf("unexpected applied record %v", rec)
	}

	sl.LogMutation(context.Background(), OpPay, NewFields().WithPocket("p1", "", ""), 7, core.ErrAlreadyPaid)
	rec = lastRecord(t, buf)
	if rec["level"] != "WARN" || rec[FieldErrorKind] != "validation" {
		t.Errorf("unexpected rejected record %v", rec)
	}
	if _, ok := rec[FieldPocketName]; ok {
		t.Error("empty pocket name should be omitted")
	}
}

func TestLogFields_WithError(t *testing.T) {
	f := NewFields().WithError(nil)
	if len(f) != 0 {
		t.Errorf("nil error should add nothing, got %v", f)
	}
	f = NewFields().WithError(errors.New("disk full"))
	if f[FieldError] != "disk full" {
		t.Errorf("unexpected fields %v", f)
	}
}
