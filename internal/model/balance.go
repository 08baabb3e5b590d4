package model

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Validation errors for model types.
var (
	ErrInvalidAccount = errors.New("invalid account")
	ErrInvalidBalance = errors.New("invalid balance")
)

// Balance is a point-in-time observation of an account's balance.
//
// Date and Seq order the observation within its account's chain. APR and
// DaysSincePredecessor are derived from the observation and its chronological
// predecessor and are only ever written by the recompute engine.
type Balance struct {
	Date                 civil.Date
	Amount               decimal.Decimal
	Topup                decimal.Decimal // External funds added at this observation
	APR                  decimal.NullDecimal
	DaysSincePredecessor *int
	ID                   string
	AccountID            int64
	Seq                  int64
}

// Derived holds the fields computed from a balance and its predecessor.
type Derived struct {
	APR                  decimal.NullDecimal
	DaysSincePredecessor *int
}

// Derived returns the balance's current derived fields.
func (b *Balance) Derived() Derived {
	return Derived{APR: b.APR, DaysSincePredecessor: b.DaysSincePredecessor}
}

// SetDerived replaces the balance's derived fields.
func (b *Balance) SetDerived(d Derived) {
	b.APR = d.APR
	b.DaysSincePredecessor = d.DaysSincePredecessor
}

// Equal reports whether two derived values are identical, treating two
// undefined values as equal.
func (d Derived) Equal(other Derived) bool {
	if d.APR.Valid != other.APR.Valid {
		return false
	}
	if d.APR.Valid && !d.APR.Decimal.Equal(other.APR.Decimal) {
		return false
	}
	if (d.DaysSincePredecessor == nil) != (other.DaysSincePredecessor == nil) {
		return false
	}
	return d.DaysSincePredecessor == nil || *d.DaysSincePredecessor == *other.DaysSincePredecessor
}

// Validate checks the caller-settable fields of a balance.
func (b *Balance) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidBalance)
	}
	if b.AccountID <= 0 {
		return fmt.Errorf("%w: missing account ID", ErrInvalidBalance)
	}
	if !b.Date.IsValid() {
		return fmt.Errorf("%w: invalid date %q", ErrInvalidBalance, b.Date.String())
	}
	return nil
}

// String returns a short human readable description.
func (b *Balance) String() string {
	return fmt.Sprintf("Balance %s on %s: %s", b.ID, b.Date, b.Amount.String())
}
