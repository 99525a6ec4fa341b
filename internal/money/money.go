// Package money provides shared parsing and formatting for monetary amounts.
//
// Amounts travel as decimal strings at API and storage boundaries and are
// manipulated as big.Int cents internally (1 unit = 100 cents). Using
// integer cents avoids float64 rounding drift in balance arithmetic.
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// Zero is the canonical zero amount.
const Zero = "0.00"

// Parse converts a decimal string (e.g. "10.50") to its cent
// representation (1050). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts cents to a decimal string with exactly two decimal
// places (e.g. 1050 → "10.50").
func Format(cents *big.Int) string {
	if cents == nil {
		return Zero
	}
	neg := cents.Sign() < 0
	abs := new(big.Int).Abs(cents)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// IsPositive reports whether s parses to a strictly positive amount.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}

// Cmp compares two decimal strings. Both must be valid; invalid input
// compares as zero.
func Cmp(a, b string) int {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return av.Cmp(bv)
}

// Add returns a + b as a decimal string.
func Add(a, b string) string {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	return Format(new(big.Int).Add(av, bv))
}

// Sub returns a - b as a decimal string. The result may be negative;
// callers that require non-negative balances must check before writing.
func Sub(a, b string) string {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	return Format(new(big.Int).Sub(av, bv))
}
