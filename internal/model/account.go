package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a single bank account whose balance is tracked over time.
type Account struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	InterestMin       decimal.NullDecimal // Lowest balance that still earns interest
	InterestMax       decimal.NullDecimal // Highest balance that still earns interest
	PredictedInterest decimal.Decimal
	BankName          string
	AccountName       string
	AccountNumber     string
	SortCode          string
	ExternalID        string // OFX ACCTID, Plaid account_id or SimpleFIN account id used by imports
	ID                int64
	InstantWithdrawal bool
}

// DisplayName returns the name used for the account in reports and series.
func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.BankName + " " + a.AccountName)
}

// HasBounds reports whether either interest bound is configured.
func (a *Account) HasBounds() bool {
	return a.InterestMin.Valid || a.InterestMax.Valid
}

// Validate checks that the account can be stored.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.BankName) == "" {
		return fmt.Errorf("%w: bank name is required", ErrInvalidAccount)
	}
	if strings.TrimSpace(a.AccountName) == "" {
		return fmt.Errorf("%w: account name is required", ErrInvalidAccount)
	}
	if a.InterestMin.Valid && a.InterestMax.Valid && a.InterestMin.Decimal.GreaterThan(a.InterestMax.Decimal) {
		return fmt.Errorf("%w: interest min must be less than or equal to interest max", ErrInvalidAccount)
	}
	return nil
}
