// Package plaid provides a client for interacting with the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
	"github.com/Veraticus/savings-tracker/internal/service"
)

// Source identifies observations produced by this package.
const Source = "plaid"

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig)
	}

	switch c.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("%w: invalid Plaid environment %q: must be sandbox or production", common.ErrInvalidConfig, c.Environment)
	}

	return nil
}

// Account describes a Plaid account an Account can be linked to.
type Account struct {
	ID   string
	Name string
	Mask string
}

// Client fetches current balances for the accounts behind one access token.
type Client struct {
	client    *plaid.APIClient
	logger    *slog.Logger
	retryOpts *service.RetryOptions
	now       func() time.Time
	token     string
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &Client{
		client: plaid.NewAPIClient(configuration),
		token:  cfg.AccessToken,
		now:    time.Now,
		logger: slog.Default().With("component", "plaid"),
		retryOpts: &service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// GetBalances fetches real-time balances and returns one observation dated
// today per account that reports a current balance.
func (c *Client) GetBalances(ctx context.Context) ([]model.Observation, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	c.logger.Info("Fetching balances from Plaid")

	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsBalanceGetRequest(c.token)
		resp, _, err := c.client.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*request).Execute()
		if err != nil {
			return c.classify(err, "failed to fetch balances")
		}
		accounts = resp.GetAccounts()
		return nil
	}, *c.retryOpts)
	if err != nil {
		return nil, err
	}

	today := civil.DateOf(c.now())
	observations := make([]model.Observation, 0, len(accounts))
	for _, acct := range accounts {
		obs, ok := mapAccountBalance(acct, today)
		if !ok {
			c.logger.Warn("Account has no current balance", "account_id", acct.GetAccountId())
			continue
		}
		observations = append(observations, obs)
	}

	c.logger.Info("Fetched balances", "accounts", len(accounts), "observations", len(observations))
	return observations, nil
}

// GetAccounts lists the accounts available under the access token.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsGetRequest(c.token)
		resp, _, err := c.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
		if err != nil {
			return c.classify(err, "failed to fetch accounts")
		}
		accounts = resp.GetAccounts()
		return nil
	}, *c.retryOpts)
	if err != nil {
		return nil, err
	}

	out := make([]Account, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, Account{
			ID:   acct.GetAccountId(),
			Name: acct.GetName(),
			Mask: acct.GetMask(),
		})
	}
	return out, nil
}

// classify turns an API error into a retryable or permanent error.
func (c *Client) classify(err error, msg string) error {
	if plaidError := extractPlaidError(err); plaidError != nil {
		if plaidError.ErrorCode == "RATE_LIMIT_EXCEEDED" {
			c.logger.Warn("Rate limit hit, will retry", "error", plaidError.ErrorMessage)
			return common.Transient(fmt.Errorf("%w: %s", common.ErrPlaidRateLimit, plaidError.ErrorMessage))
		}
		return common.Permanent(fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage))
	}
	return fmt.Errorf("%w: %s: %w", common.ErrPlaidConnection, msg, err)
}

// mapAccountBalance converts an account's current balance into an observation.
func mapAccountBalance(acct plaid.AccountBase, date civil.Date) (model.Observation, bool) {
	balances := acct.GetBalances()
	current, ok := balances.GetCurrentOk()
	if !ok || current == nil {
		return model.Observation{}, false
	}

	return model.Observation{
		Date:       date,
		Amount:     decimal.NewFromFloat(*current).Round(2),
		ExternalID: acct.GetAccountId(),
		Name:       acct.GetName(),
		Source:     Source,
	}, true
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}

// Ensure Client implements BalanceFetcher interface.
var _ service.BalanceFetcher = (*Client)(nil)
