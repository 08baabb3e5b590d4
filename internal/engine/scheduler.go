package engine

import (
	"sort"

	"github.com/Veraticus/savings-tracker/internal/chain"
	"github.com/Veraticus/savings-tracker/internal/derive"
	"github.com/Veraticus/savings-tracker/internal/model"
)

// maxRecomputations bounds the nodes a single structural change can
// invalidate: the node itself, its old successor and its new successor.
const maxRecomputations = 3

// Update records one derived-value change so it can be rolled back.
type Update struct {
	Node     *model.Balance
	Previous model.Derived
	Current  model.Derived
}

// Result is the outcome of recomputing after a structural change.
type Result struct {
	// Recomputed lists every node that was re-derived, in chain order.
	Recomputed []*model.Balance
	// Updates lists the nodes whose derived values actually changed.
	Updates []Update
}

// Affected returns the nodes whose derived values may depend on what the
// change touched, in chain order. Nodes no longer in the chain are skipped.
func Affected(c *chain.Chain, change chain.Change) []*model.Balance {
	candidates := make([]*model.Balance, 0, maxRecomputations)
	if change.Kind != chain.Deleted {
		candidates = append(candidates, change.Node)
	}
	candidates = append(candidates, change.OldSucc, change.NewSucc)

	seen := make(map[*model.Balance]bool, maxRecomputations)
	affected := make([]*model.Balance, 0, maxRecomputations)
	for _, b := range candidates {
		if b == nil || seen[b] || !c.Contains(b) {
			continue
		}
		seen[b] = true
		affected = append(affected, b)
	}

	sort.Slice(affected, func(i, j int) bool {
		return chain.Less(affected[i], affected[j])
	})
	return affected
}

// Recompute re-derives every node affected by the change against its current
// predecessor and applies the new values in place.
func Recompute(c *chain.Chain, change chain.Change) Result {
	affected := Affected(c, change)
	result := Result{Recomputed: affected}

	for _, b := range affected {
		if u, changed := rederive(b, c.Predecessor(b)); changed {
			result.Updates = append(result.Updates, u)
		}
	}
	return result
}

// RecomputeAll re-derives every node of the chain and returns the ones whose
// stored values were stale. A consistent chain yields no updates.
func RecomputeAll(c *chain.Chain) []Update {
	var (
		updates []Update
		pred    *model.Balance
	)
	for _, b := range c.All() {
		if u, changed := rederive(b, pred); changed {
			updates = append(updates, u)
		}
		pred = b
	}
	return updates
}

// Rollback restores the derived values recorded in updates.
func Rollback(updates []Update) {
	for i := len(updates) - 1; i >= 0; i-- {
		updates[i].Node.SetDerived(updates[i].Previous)
	}
}

func rederive(b, pred *model.Balance) (Update, bool) {
	current := derive.Derive(b, pred)
	previous := b.Derived()
	if current.Equal(previous) {
		return Update{}, false
	}
	b.SetDerived(current)
	return Update{Node: b, Previous: previous, Current: current}, true
}
