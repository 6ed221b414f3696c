// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and formatting the fixed-precision representation used by the ledger.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a decimal string to a Money value in minor units.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and at
// most two fractional digits. Signs, extra separators, non-digit characters
// and a third fractional digit are all rejected — the ledger never rounds or
// coerces an amount on the way in. Zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> Money{1234}, nil
//	ParseAmount("12,34")  -> Money{1234}, nil
//	ParseAmount("12.5")   -> Money{1250}, nil
//	ParseAmount("0")      -> Money{0}, nil
//	ParseAmount("-5.00")  -> Money{}, ErrInvalidAmount
//	ParseAmount("12.345") -> Money{}, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("amount is required: %w", ErrInvalidAmount)
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, fmt.Errorf("amount %q must be an unsigned decimal: %w", raw, ErrInvalidAmount)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
		}
	}
	if len(fracPart) > 2 {
		return Money{}, fmt.Errorf("amount %q has more than two decimal places: %w", raw, ErrInvalidAmount)
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, fmt.Errorf("amount %q: %w", raw, ErrInvalidAmount)
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
		}
	}
	return Money{Cents: iv*100 + fracCents}, nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return fmt.Errorf("amount %s is negative: %w", m, ErrInvalidAmount)
	}
	return nil
}

// Add returns the exact sum in minor units.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String renders the amount as a fixed-point decimal ("1234.56"). Negative
// values only ever come from display-side arithmetic; the ledger stores
// non-negative amounts.
func (m Money) String() string {
	c := m.Cents
	neg := c < 0
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10) + "." + fmt.Sprintf("%02d", c%100)
	if neg {
		return "-" + s
	}
	return s
}

// MarshalJSON emits the exact decimal string form. JSON numbers decode as
// float64 and would reintroduce the drift the minor-unit representation
// exists to prevent.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("amount must be a decimal string: %w", ErrInvalidAmount)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
