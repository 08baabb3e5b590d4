package plaid

import (
	"context"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// MockClient is a mock implementation of BalanceSource for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	GetBalancesFn func(ctx context.Context) ([]model.Observation, error)
	GetAccountsFn func(ctx context.Context) ([]Account, error)

	// Call tracking
	GetBalancesCalls int
	GetAccountsCalls int
}

// NewMockClient creates a new mock Plaid client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// GetBalances implements BalanceSource.GetBalances.
func (m *MockClient) GetBalances(ctx context.Context) ([]model.Observation, error) {
	m.GetBalancesCalls++

	if m.GetBalancesFn != nil {
		return m.GetBalancesFn(ctx)
	}

	return []model.Observation{}, nil
}

// GetAccounts implements BalanceSource.GetAccounts.
func (m *MockClient) GetAccounts(ctx context.Context) ([]Account, error) {
	m.GetAccountsCalls++

	if m.GetAccountsFn != nil {
		return m.GetAccountsFn(ctx)
	}

	return []Account{}, nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.GetBalancesCalls = 0
	m.GetAccountsCalls = 0
}
