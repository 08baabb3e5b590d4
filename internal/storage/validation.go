package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidID    = errors.New("invalid identifier")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateID ensures a numeric identifier is positive.
func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidID, paramName, id)
	}
	return nil
}

// validateAccount validates an account before it is stored.
func validateAccount(account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	return account.Validate()
}

// validateChainChange validates every balance a chain change writes.
func validateChainChange(change *model.ChainChange) error {
	if change == nil {
		return fmt.Errorf("%w: chain change", ErrNilParameter)
	}
	if err := validateID(change.AccountID, "accountID"); err != nil {
		return err
	}
	if change.Created != nil && change.Deleted != nil {
		return fmt.Errorf("%w: chain change both creates and deletes", model.ErrInvalidBalance)
	}

	written := make([]*model.Balance, 0, len(change.Updated)+1)
	if change.Created != nil {
		written = append(written, change.Created)
	}
	written = append(written, change.Updated...)

	for i, b := range written {
		if b == nil {
			return fmt.Errorf("%w: balance at index %d", ErrNilParameter, i)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("balance at index %d: %w", i, err)
		}
		if b.AccountID != change.AccountID {
			return fmt.Errorf("%w: balance %s belongs to account %d, not %d",
				model.ErrInvalidBalance, b.ID, b.AccountID, change.AccountID)
		}
	}

	if change.Deleted != nil {
		if err := validateString(change.Deleted.ID, "deleted balance ID"); err != nil {
			return err
		}
	}
	return nil
}
