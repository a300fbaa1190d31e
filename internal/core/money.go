// Package core holds the domain model for the household ledger.
//
// Money is kept in integer cents everywhere; every multiplication or
// division rounds half-up to a whole cent before the value is used again,
// so floating error never accumulates across operations.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type Money struct {
	Cents int64
}

// Rate is a monthly percentage in the 0-100 range. All percentage
// interpretation goes through this type so a 0-1 fraction can never sneak
// into a calculation.
type Rate float64

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the value as a float64 for display purposes only.
// Use cents for every calculation.
func (m Money) Decimal() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two fraction digits, e.g. "33.34".
func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func (r Rate) Validate() error {
	if r < 0 || r > 100 {
		return ErrInvalidRate
	}
	return nil
}

// ApplyTo computes amount * rate/100 in cents, rounded half-up.
func (r Rate) ApplyTo(amount Money) Money {
	if amount.Cents <= 0 || r <= 0 {
		return Money{}
	}
	// Convert the rate to basis points once, then stay in integer math so
	// the half-up decision is exact.
	bps := int64(float64(r)*100 + 0.5)
	cents := (amount.Cents*bps + 5000) / 10000
	return Money{Cents: cents}
}

// SplitEven divides the amount into n equal cent parts, putting the
// division remainder on the last part so the parts always sum back to the
// original amount. 100.00 over 3 yields 33.33, 33.33, 33.34.
func (m Money) SplitEven(n int) []Money {
	if n <= 0 {
		return nil
	}
	each := m.Cents / int64(n)
	parts := make([]Money, n)
	for i := range parts {
		parts[i] = Money{Cents: each}
	}
	parts[n-1].Cents += m.Cents - each*int64(n)
	return parts
}

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. It accepts both dot (12.34) and
// comma (12,34) separators. Only positive amounts are valid.
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
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
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
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
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
