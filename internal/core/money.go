// Package core provides the pocket ledger domain model.
//
// This file contains the Money value, parsing of user-entered amounts and
// currency formatting.
package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	gomoney "github.com/Rhymond/go-money"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = gomoney.EUR

// MaxCents bounds a single amount or goal. Balances stay far inside the
// int64 range as long as every step goes through CheckedAdd.
const MaxCents = 100_000_000_000_000

// Money is an amount in minor units (cents). Balances may be negative;
// transaction amounts are always positive magnitudes.
type Money struct {
	Cents int64
}

// Cents is a shorthand constructor.
func Cents(c int64) Money { return Money{Cents: c} }

func (m Money) Add(n Money) Money     { return Money{Cents: m.Cents + n.Cents} }
func (m Money) Sub(n Money) Money     { return Money{Cents: m.Cents - n.Cents} }
func (m Money) Neg() Money            { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool          { return m.Cents == 0 }
func (m Money) IsNegative() bool      { return m.Cents < 0 }
func (m Money) LessThan(n Money) bool { return m.Cents < n.Cents }

// CheckedAdd adds n, failing with ErrAmountOverflow instead of wrapping.
func (m Money) CheckedAdd(n Money) (Money, error) {
	if (n.Cents > 0 && m.Cents > math.MaxInt64-n.Cents) ||
		(n.Cents < 0 && m.Cents < math.MinInt64-n.Cents) {
		return m, ErrAmountOverflow
	}
	return Money{Cents: m.Cents + n.Cents}, nil
}

// Validate checks that the amount is usable as a transaction magnitude.
func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// Major returns the value in major units for display purposes only.
// Use Cents for calculations.
func (m Money) Major() float64 {
	return float64(m.Cents) / 100.0
}

// Format renders the amount in the given ISO 4217 currency, e.g. "$12.34".
// Unknown codes fall back to DefaultCurrency.
func (m Money) Format(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !IsKnownCurrency(currency) {
		currency = DefaultCurrency
	}
	return gomoney.New(m.Cents, currency).Display()
}

func (m Money) String() string {
	return m.Format(DefaultCurrency)
}

// MarshalJSON encodes Money as a bare integer number of cents.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Cents)
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &m.Cents)
}

// IsKnownCurrency reports whether code is a supported ISO 4217 code.
func IsKnownCurrency(code string) bool {
	return code != "" && gomoney.GetCurrency(strings.ToUpper(code)) != nil
}

// FromMajor converts a major-unit float (as stored by legacy records) to
// Money, rounding half away from zero.
func FromMajor(v float64) Money {
	return Money{Cents: int64(math.Round(v * 100))}
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.346") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseMoney parses a positive user-entered amount.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}
