package model

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Observation is a balance reported by an external source (an OFX statement,
// a Plaid or SimpleFIN account) that has not yet been placed in an account's
// chain.
type Observation struct {
	Date       civil.Date
	Amount     decimal.Decimal
	ExternalID string // Source account identifier
	Name       string // Source account name, if the source reports one
	Source     string
}

// ChainChange is the persisted effect of one mutation on an account's chain.
// Created and Deleted are mutually exclusive; Updated holds every other node
// whose stored fields changed, including recomputed derived values.
type ChainChange struct {
	Created   *Balance
	Deleted   *Balance
	Updated   []*Balance
	AccountID int64
}

// Empty reports whether the change has nothing to persist.
func (c *ChainChange) Empty() bool {
	return c.Created == nil && c.Deleted == nil && len(c.Updated) == 0
}
