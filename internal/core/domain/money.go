package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept for money.
const AmountScale = 2

// MaxAmount is the largest value an amount column, NUMERIC(14, 2), can hold.
var MaxAmount = decimal.RequireFromString("999999999999.99")

var (
	ErrAmountFormat      = errors.New("amount is not a decimal number")
	ErrAmountPrecision   = errors.New("amount has more than 2 decimal places")
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountTooLarge    = errors.New("amount exceeds 999999999999.99")
)

// DefaultCurrencies is used when no currency list is configured.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "INR", "CAD", "AUD"}

// ParseAmount parses a positive money amount with at most two decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrAmountFormat
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks an already parsed amount.
func ValidateAmount(d decimal.Decimal) error {
	if !d.Equal(d.Round(AmountScale)) {
		return ErrAmountPrecision
	}
	if !d.IsPositive() {
		return ErrAmountNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// FormatAmount renders an amount with two decimal places, e.g. "120.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// CurrencySet is the set of ISO-4217 codes the ledger accepts.
type CurrencySet map[string]struct{}

// NewCurrencySet builds a set from codes, falling back to DefaultCurrencies when empty.
func NewCurrencySet(codes []string) CurrencySet {
	if len(codes) == 0 {
		codes = DefaultCurrencies
	}
	set := make(CurrencySet, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func (s CurrencySet) Supports(code string) bool {
	_, ok := s[strings.ToUpper(code)]
	return ok
}
