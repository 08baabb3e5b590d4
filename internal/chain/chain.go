// Package chain maintains the chronologically ordered balance observations of
// a single account and answers predecessor and successor queries.
//
// The chain is a B-tree keyed by (Date, Seq). Predecessors are always found by
// querying the index, never by following stored references, so a structural
// change can never leave a stale link behind. The chain never touches derived
// fields; that is the recompute engine's job.
package chain

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"
	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

const degree = 16

// Kind identifies the structural mutation recorded in a Change.
type Kind int

const (
	// Inserted means the node was added to the chain.
	Inserted Kind = iota
	// Updated means the node's amount, topup or date changed.
	Updated
	// Deleted means the node was removed from the chain.
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Change describes a node's neighbourhood before and after a structural
// mutation. Neighbours are nil at chain boundaries, and the "old" neighbours
// of an inserted node and the "new" neighbours of a deleted node are nil.
type Change struct {
	Node    *model.Balance
	OldPred *model.Balance
	OldSucc *model.Balance
	NewPred *model.Balance
	NewSucc *model.Balance
	before  fields
	Kind    Kind
}

// fields are the caller-settable values restored by Revert.
type fields struct {
	date   civil.Date
	amount decimal.Decimal
	topup  decimal.Decimal
}

// Chain is the ordered set of balance observations of one account.
type Chain struct {
	tree      *btree.BTreeG[*model.Balance]
	byID      map[string]*model.Balance
	accountID int64
	nextSeq   int64
	tieBreak  TieBreak
}

// New creates an empty chain for the account.
func New(accountID int64, tieBreak TieBreak) *Chain {
	return &Chain{
		tree:      btree.NewG(degree, less),
		byID:      make(map[string]*model.Balance),
		accountID: accountID,
		nextSeq:   1,
		tieBreak:  tieBreak,
	}
}

// Load builds a chain from stored balances, keeping their sequence numbers.
func Load(accountID int64, tieBreak TieBreak, balances []*model.Balance) (*Chain, error) {
	c := New(accountID, tieBreak)
	for _, b := range balances {
		if b.AccountID != accountID {
			return nil, fmt.Errorf("balance %s belongs to account %d, not %d", b.ID, b.AccountID, accountID)
		}
		if _, exists := c.byID[b.ID]; exists {
			return nil, fmt.Errorf("%w: balance %s loaded twice", common.ErrDuplicateEntry, b.ID)
		}
		if b.Seq <= 0 {
			b.Seq = c.nextSeq
		}
		if _, replaced := c.tree.ReplaceOrInsert(b); replaced {
			return nil, fmt.Errorf("%w: balances share date %s and sequence %d", common.ErrDuplicateEntry, b.Date, b.Seq)
		}
		c.byID[b.ID] = b
		if b.Seq >= c.nextSeq {
			c.nextSeq = b.Seq + 1
		}
	}
	return c, nil
}

// less orders balances by date, then by insertion sequence.
func less(a, b *model.Balance) bool {
	if cmp := a.Date.Compare(b.Date); cmp != 0 {
		return cmp < 0
	}
	return a.Seq < b.Seq
}

// Less reports whether a precedes b in chain order.
func Less(a, b *model.Balance) bool {
	return less(a, b)
}

// AccountID returns the owning account.
func (c *Chain) AccountID() int64 {
	return c.accountID
}

// Len returns the number of observations in the chain.
func (c *Chain) Len() int {
	return c.tree.Len()
}

// Get returns the node with the given ID.
func (c *Chain) Get(id string) (*model.Balance, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Contains reports whether the node is currently part of the chain.
func (c *Chain) Contains(b *model.Balance) bool {
	if b == nil {
		return false
	}
	current, ok := c.byID[b.ID]
	return ok && current == b
}

// First returns the earliest observation, or nil for an empty chain.
func (c *Chain) First() *model.Balance {
	b, ok := c.tree.Min()
	if !ok {
		return nil
	}
	return b
}

// Last returns the latest observation, or nil for an empty chain.
func (c *Chain) Last() *model.Balance {
	b, ok := c.tree.Max()
	if !ok {
		return nil
	}
	return b
}

// Predecessor returns the closest observation strictly before b, or nil.
// b does not need to be part of the chain.
func (c *Chain) Predecessor(b *model.Balance) *model.Balance {
	var pred *model.Balance
	c.tree.DescendLessOrEqual(b, func(item *model.Balance) bool {
		if !less(item, b) {
			return true
		}
		pred = item
		return false
	})
	return pred
}

// Successor returns the closest observation strictly after b, or nil.
// b does not need to be part of the chain.
func (c *Chain) Successor(b *model.Balance) *model.Balance {
	var succ *model.Balance
	c.tree.AscendGreaterOrEqual(b, func(item *model.Balance) bool {
		if !less(b, item) {
			return true
		}
		succ = item
		return false
	})
	return succ
}

// All returns the observations in chronological order.
func (c *Chain) All() []*model.Balance {
	out := make([]*model.Balance, 0, c.tree.Len())
	c.tree.Ascend(func(item *model.Balance) bool {
		out = append(out, item)
		return true
	})
	return out
}

// OnDate returns the observations recorded on the given date, in sequence order.
func (c *Chain) OnDate(date civil.Date) []*model.Balance {
	var out []*model.Balance
	pivot := &model.Balance{Date: date, Seq: math.MinInt64}
	c.tree.AscendGreaterOrEqual(pivot, func(item *model.Balance) bool {
		if item.Date != date {
			return false
		}
		out = append(out, item)
		return true
	})
	return out
}

// Insert adds a new observation and assigns its sequence number.
func (c *Chain) Insert(b *model.Balance) (Change, error) {
	if b == nil {
		return Change{}, fmt.Errorf("%w: nil balance", model.ErrInvalidBalance)
	}
	if b.AccountID != c.accountID {
		return Change{}, fmt.Errorf("%w: balance belongs to account %d, not %d", model.ErrInvalidBalance, b.AccountID, c.accountID)
	}
	if err := b.Validate(); err != nil {
		return Change{}, err
	}
	if _, exists := c.byID[b.ID]; exists {
		return Change{}, fmt.Errorf("%w: balance %s already in chain", common.ErrDuplicateEntry, b.ID)
	}
	if err := c.checkTie(b.Date, nil); err != nil {
		return Change{}, err
	}

	b.Seq = c.nextSeq
	c.nextSeq++
	c.tree.ReplaceOrInsert(b)
	c.byID[b.ID] = b

	return Change{
		Kind:    Inserted,
		Node:    b,
		NewPred: c.Predecessor(b),
		NewSucc: c.Successor(b),
	}, nil
}

// Update changes a node's amount, topup and date. A date change may move the
// node to a different place in the chain.
func (c *Chain) Update(id string, amount, topup decimal.Decimal, date civil.Date) (Change, error) {
	b, ok := c.byID[id]
	if !ok {
		return Change{}, fmt.Errorf("%w: balance %s", common.ErrNotFound, id)
	}
	if !date.IsValid() {
		return Change{}, fmt.Errorf("%w: invalid date %q", model.ErrInvalidBalance, date.String())
	}
	if date != b.Date {
		if err := c.checkTie(date, b); err != nil {
			return Change{}, err
		}
	}

	change := Change{
		Kind:    Updated,
		Node:    b,
		OldPred: c.Predecessor(b),
		OldSucc: c.Successor(b),
		before:  fields{date: b.Date, amount: b.Amount, topup: b.Topup},
	}

	c.tree.Delete(b)
	b.Date = date
	b.Amount = amount
	b.Topup = topup
	c.tree.ReplaceOrInsert(b)

	change.NewPred = c.Predecessor(b)
	change.NewSucc = c.Successor(b)
	return change, nil
}

// Delete removes a node from the chain.
func (c *Chain) Delete(id string) (Change, error) {
	b, ok := c.byID[id]
	if !ok {
		return Change{}, fmt.Errorf("%w: balance %s", common.ErrNotFound, id)
	}

	change := Change{
		Kind:    Deleted,
		Node:    b,
		OldPred: c.Predecessor(b),
		OldSucc: c.Successor(b),
	}

	c.tree.Delete(b)
	delete(c.byID, id)
	return change, nil
}

// Revert undoes the structural effect of a change returned by this chain.
// Changes must be reverted in the reverse order they were made.
func (c *Chain) Revert(change Change) {
	b := change.Node
	switch change.Kind {
	case Inserted:
		c.tree.Delete(b)
		delete(c.byID, b.ID)
		if b.Seq == c.nextSeq-1 {
			c.nextSeq--
		}
	case Updated:
		c.tree.Delete(b)
		b.Date = change.before.date
		b.Amount = change.before.amount
		b.Topup = change.before.topup
		c.tree.ReplaceOrInsert(b)
	case Deleted:
		c.tree.ReplaceOrInsert(b)
		c.byID[b.ID] = b
	}
}

// checkTie applies the tie-break policy to a node placed on date. self is the
// node being moved, if any, and is ignored.
func (c *Chain) checkTie(date civil.Date, self *model.Balance) error {
	if c.tieBreak != TieBreakReject {
		return nil
	}
	for _, other := range c.OnDate(date) {
		if other != self {
			return fmt.Errorf("%w: account %d already has balance %s on %s",
				common.ErrInvalidOrdering, c.accountID, other.ID, date)
		}
	}
	return nil
}
