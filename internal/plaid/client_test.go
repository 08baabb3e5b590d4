package plaid

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantIs  error
		config  Config
		name    string
		errMsg  string
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				ClientID:    "test-client-id",
				Secret:      "test-secret",
				Environment: "sandbox",
				AccessToken: "test-token",
			},
		},
		{
			name: "valid production environment",
			config: Config{
				ClientID:    "test-client-id",
				Secret:      "test-secret",
				Environment: "production",
				AccessToken: "test-token",
			},
		},
		{
			name: "missing client ID",
			config: Config{
				Secret:      "test-secret",
				Environment: "sandbox",
				AccessToken: "test-token",
			},
			wantErr: true,
			wantIs:  common.ErrMissingConfig,
			errMsg:  "plaid client ID is required",
		},
		{
			name: "missing secret",
			config: Config{
				ClientID:    "test-client-id",
				Environment: "sandbox",
				AccessToken: "test-token",
			},
			wantErr: true,
			wantIs:  common.ErrMissingConfig,
			errMsg:  "plaid secret is required",
		},
		{
			name: "missing access token",
			config: Config{
				ClientID:    "test-client-id",
				Secret:      "test-secret",
				Environment: "sandbox",
			},
			wantErr: true,
			wantIs:  common.ErrMissingConfig,
			errMsg:  "plaid access token is required",
		},
		{
			name: "missing environment",
			config: Config{
				ClientID:    "test-client-id",
				Secret:      "test-secret",
				AccessToken: "test-token",
			},
			wantErr: true,
			wantIs:  common.ErrMissingConfig,
			errMsg:  "plaid environment is required",
		},
		{
			name: "invalid environment",
			config: Config{
				ClientID:    "test-client-id",
				Secret:      "test-secret",
				Environment: "development",
				AccessToken: "test-token",
			},
			wantErr: true,
			wantIs:  common.ErrInvalidConfig,
			errMsg:  "invalid Plaid environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantIs)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{
		ClientID:    "test-client-id",
		Secret:      "test-secret",
		Environment: "sandbox",
		AccessToken: "test-token",
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "test-token", client.token)
	assert.NotNil(t, client.now)

	_, err = NewClient(Config{ClientID: "id"})
	require.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestClient_NilContext(t *testing.T) {
	client, err := NewClient(Config{
		ClientID:    "test-client-id",
		Secret:      "test-secret",
		Environment: "sandbox",
		AccessToken: "test-token",
	})
	require.NoError(t, err)

	//nolint:staticcheck // exercising the nil guard
	_, err = client.GetBalances(nil)
	require.Error(t, err)

	//nolint:staticcheck // exercising the nil guard
	_, err = client.GetAccounts(nil)
	require.Error(t, err)
}

func TestMapAccountBalance(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 3, Day: 15}

	balance := plaid.AccountBalance{}
	balance.SetCurrent(1523.456)

	acct := plaid.AccountBase{}
	acct.SetAccountId("acc-123")
	acct.SetName("High Yield Savings")
	acct.SetBalances(balance)

	obs, ok := mapAccountBalance(acct, date)
	require.True(t, ok)
	assert.Equal(t, "acc-123", obs.ExternalID)
	assert.Equal(t, "High Yield Savings", obs.Name)
	assert.Equal(t, date, obs.Date)
	assert.Equal(t, "1523.46", obs.Amount.String())
	assert.Equal(t, Source, obs.Source)

	empty := plaid.AccountBase{}
	empty.SetAccountId("acc-456")
	empty.SetBalances(plaid.AccountBalance{})
	_, ok = mapAccountBalance(empty, date)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	client := &Client{logger: discardLogger()}

	err := client.classify(errors.New("connection reset"), "failed to fetch balances")
	require.ErrorIs(t, err, common.ErrPlaidConnection)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	observations, err := mock.GetBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, observations)
	assert.Equal(t, 1, mock.GetBalancesCalls)

	want := []model.Observation{{ExternalID: "a", Date: civil.DateOf(time.Now())}}
	mock.GetBalancesFn = func(context.Context) ([]model.Observation, error) {
		return want, nil
	}
	observations, err = mock.GetBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, observations)
	assert.Equal(t, 2, mock.GetBalancesCalls)

	mock.GetAccountsFn = func(context.Context) ([]Account, error) {
		return nil, common.ErrPlaidConnection
	}
	_, err = mock.GetAccounts(ctx)
	require.ErrorIs(t, err, common.ErrPlaidConnection)
	assert.Equal(t, 1, mock.GetAccountsCalls)

	mock.Reset()
	assert.Zero(t, mock.GetBalancesCalls)
	assert.Zero(t, mock.GetAccountsCalls)
}
