// Package simplefin reads account balances from a SimpleFIN Bridge access URL.
package simplefin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
	"github.com/Veraticus/savings-tracker/internal/service"
)

// Source identifies observations produced by this package.
const Source = "simplefin"

const maxErrorBody = 4 << 10

var _ service.BalanceFetcher = (*Client)(nil)

// accountSet is the body of GET /accounts.
type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	Org         organization `json:"org"`
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Currency    string       `json:"currency"`
	Balance     string       `json:"balance"`
	BalanceDate int64        `json:"balance-date"`
}

type organization struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Client fetches balances for every account behind an access URL.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	accessURL  string
	retryOpts  service.RetryOptions
}

// NewClient creates a client for accessURL. A nil httpClient gets a default
// with a 30 second timeout.
func NewClient(accessURL string, httpClient *http.Client) (*Client, error) {
	if err := validateURL(accessURL); err != nil {
		return nil, fmt.Errorf("%w: simplefin access URL: %v", common.ErrInvalidConfig, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		accessURL:  strings.TrimRight(accessURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
		logger:     slog.Default().With("component", "simplefin"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// GetBalances returns one observation per account, dated by the account's
// balance-date.
func (c *Client) GetBalances(ctx context.Context) ([]model.Observation, error) {
	c.logger.Info("Fetching balances from SimpleFIN")

	var set accountSet
	err := common.WithRetry(ctx, func() error {
		var err error
		set, err = c.fetchAccounts(ctx)
		return err
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported a problem", "message", msg)
	}

	observations := make([]model.Observation, 0, len(set.Accounts))
	for _, acct := range set.Accounts {
		obs, err := c.toObservation(acct)
		if err != nil {
			c.logger.Warn("Skipping account", "account_id", acct.ID, "error", err)
			continue
		}
		observations = append(observations, obs)
	}

	c.logger.Info("Fetched balances", "accounts", len(set.Accounts), "observations", len(observations))
	return observations, nil
}

func (c *Client) fetchAccounts(ctx context.Context) (accountSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.accessURL+"/accounts?balances-only=1", nil)
	if err != nil {
		return accountSet{}, common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return accountSet{}, common.Transient(fmt.Errorf("failed to fetch accounts: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return accountSet{}, common.Permanent(fmt.Errorf("%w: status %d", common.ErrSimpleFINAccess, resp.StatusCode))
	case resp.StatusCode == http.StatusPaymentRequired:
		return accountSet{}, common.Permanent(fmt.Errorf("%w: subscription payment required", common.ErrSimpleFINAccess))
	case resp.StatusCode == http.StatusTooManyRequests:
		return accountSet{}, &common.RetryableError{
			Err:        fmt.Errorf("%w: simplefin", common.ErrRateLimit),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Retryable:  true,
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return accountSet{}, common.Transient(fmt.Errorf("simplefin server error: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return accountSet{}, common.Permanent(fmt.Errorf("simplefin API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var set accountSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return accountSet{}, common.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return set, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func (c *Client) toObservation(acct account) (model.Observation, error) {
	if acct.ID == "" {
		return model.Observation{}, errors.New("account has no ID")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(acct.Balance))
	if err != nil {
		return model.Observation{}, fmt.Errorf("invalid balance %q: %w", acct.Balance, err)
	}

	asOf := c.now()
	if acct.BalanceDate > 0 {
		asOf = time.Unix(acct.BalanceDate, 0)
	}

	name := acct.Name
	if acct.Org.Name != "" {
		name = acct.Org.Name + " " + acct.Name
	}

	return model.Observation{
		Date:       civil.DateOf(asOf.UTC()),
		Amount:     amount,
		ExternalID: acct.ID,
		Name:       name,
		Source:     Source,
	}, nil
}
