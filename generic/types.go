/*
Package generic provides the domain-agnostic building blocks of the leave ledger.

PURPOSE:
  Leave balances, request lengths, and accrual amounts are all counted in
  days with fractional precision. This package holds the helpers every other
  package uses for those quantities, plus calendar dates, accrual periods,
  identifiers, and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: decimal.Decimal quantities (never float64)
  - ParseDays / FormatDays: the text forms used in storage and messages
  - NewID: random identifiers for stored records

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift on balances
  2. One representation: stores persist decimals as their canonical string

USAGE:
  days := generic.DaysFromInt(generic.BusinessDays(start, end))
  if days.GreaterThan(available) {
      return generic.Errorf(generic.KindInsufficientBalance,
          "Insufficient balance. Available: %s days", generic.FormatDays(available))
  }

SEE ALSO:
  - time.go: Date, BusinessDays, Month
  - errors.go: Error kinds
*/
package generic

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal day quantities
// =============================================================================

// DaysFromInt converts a whole number of days.
func DaysFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// ParseDays parses a decimal day count such as "1.5".
func ParseDays(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid day amount %q: %w", s, err)
	}
	return d, nil
}

// FormatDays renders a day count without trailing zeros ("2", "2.5").
func FormatDays(d decimal.Decimal) string {
	return d.String()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}
