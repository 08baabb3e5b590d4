package plaid

import (
	"context"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// BalanceSource defines the contract for fetching balances and the accounts
// they belong to. This interface allows for easy mocking in tests.
type BalanceSource interface {
	GetBalances(ctx context.Context) ([]model.Observation, error)
	GetAccounts(ctx context.Context) ([]Account, error)
}

var (
	_ BalanceSource = (*Client)(nil)
	_ BalanceSource = (*MockClient)(nil)
)
