// Package http provides the JSON API over the ledger.
//
// This file implements the Builder Pattern for constructing API responses.
// Every response body has the same envelope: data on success, error on
// failure, and an optional notification the client shows as a toast.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pockets/internal/core"
	"pockets/internal/ledger"
)

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is the toast side-channel of a response.
type Notification struct {
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	DurationMs int              `json:"duration"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type envelope struct {
	Data         any           `json:"data"`
	Error        *APIError     `json:"error,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building API responses.
type JSONResponseBuilder struct {
	statusCode   int
	data         any
	apiErr       *APIError
	notification *Notification
	headers      map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Notify sets the toast. Success and info toasts last 3s, others 5s.
func (b *JSONResponseBuilder) Notify(t NotificationType, message string) *JSONResponseBuilder {
	d := 3000
	if t == NotificationError || t == NotificationWarning {
		d = 5000
	}
	b.notification = &Notification{Type: t, Message: message, DurationMs: d}
	return b
}

// Notice converts a ledger notice into the response toast.
func (b *JSONResponseBuilder) Notice(n ledger.Notice) *JSONResponseBuilder {
	return b.Notify(NotificationType(n.Level), n.Message)
}

// Error sets the status and error body for err. The toast, if not already
// set, repeats the message.
func (b *JSONResponseBuilder) Error(err error) *JSONResponseBuilder {
	b.statusCode = StatusFor(err)
	b.apiErr = &APIError{Kind: errorKind(err), Message: publicMessage(err)}
	if b.notification == nil {
		b.Notify(NotificationError, b.apiErr.Message)
	}
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	body, err := json.Marshal(envelope{Data: b.data, Error: b.apiErr, Notification: b.notification})
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"data":null,"error":{"kind":"internal","message":"internal error"}}`))
		return
	}
	w.WriteHeader(b.statusCode)
	if b.statusCode != http.StatusNoContent {
		_, _ = w.Write(body)
	}
}

// StatusFor maps the ledger error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return "bad_request"
	}
	return core.Kind(err)
}

func publicMessage(err error) string {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.msg
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrNotFound):
		return err.Error()
	case errors.Is(err, core.ErrPersistence):
		return "storage unavailable, try again later"
	default:
		return "internal error"
	}
}

// ErrorResponse creates a response for err.
func ErrorResponse(err error) *JSONResponseBuilder {
	return NewJSONResponse().Error(err)
}
