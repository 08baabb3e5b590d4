package chain

import (
	"fmt"
	"strings"

	"github.com/Veraticus/savings-tracker/internal/common"
)

// TieBreak decides how observations sharing a date are ordered.
type TieBreak int

const (
	// TieBreakSequence orders same-date observations by insertion sequence.
	TieBreakSequence TieBreak = iota
	// TieBreakReject refuses a second observation on an occupied date.
	TieBreakReject
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakSequence:
		return "sequence"
	case TieBreakReject:
		return "reject"
	default:
		return fmt.Sprintf("tiebreak(%d)", int(t))
	}
}

// ParseTieBreak converts a configured policy name. An empty name selects the
// sequence policy.
func ParseTieBreak(name string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sequence":
		return TieBreakSequence, nil
	case "reject":
		return TieBreakReject, nil
	default:
		return TieBreakSequence, fmt.Errorf("%w: unknown tie-break policy %q", common.ErrInvalidConfig, name)
	}
}
