// Package query serves account summaries and per-observation series in the
// JSON shape a Grafana simple-JSON datasource expects.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/savings-tracker/internal/common"
)

// Supported targets.
const (
	TargetAccounts = "accounts"
	TargetBalances = "balances"
	TargetAPRs     = "APRs"
	TargetReturns  = "returns"
)

// Targets lists every supported target name, as returned by search.
var Targets = []string{TargetAccounts, TargetBalances, TargetAPRs, TargetReturns}

// Column types of a table response.
const (
	ColumnNumber = "number"
	ColumnString = "string"
	ColumnBool   = "bool"
)

// Request is the body of a query call.
type Request struct {
	Targets []Target `json:"targets"`
}

// Target names one requested dataset.
type Target struct {
	Data   *TargetData `json:"data,omitempty"`
	Target string      `json:"target"`
}

// TargetData carries per-target options. PK is kept raw so that a bad key
// fails only its own target.
type TargetData struct {
	PK json.RawMessage `json:"pk,omitempty"`
}

// AccountID returns the primary key named by pk, which may be a JSON number or
// a numeric string. ok is false when no key was given.
func (d *TargetData) AccountID() (id int64, ok bool, err error) {
	if d == nil {
		return 0, false, nil
	}
	raw := strings.TrimSpace(string(d.PK))
	if raw == "" || raw == "null" {
		return 0, false, nil
	}
	if unquoted, uerr := strconv.Unquote(raw); uerr == nil {
		raw = strings.TrimSpace(unquoted)
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: invalid pk %s", common.ErrMalformedRequest, string(d.PK))
	}
	return id, true, nil
}

// Column describes one column of a table response.
type Column struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Table is the response for the accounts target.
type Table struct {
	Type    string   `json:"type"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Datapoint is a [value, epoch millis] pair. A nil value encodes as null.
type Datapoint [2]any

// Series is the response for a time-series target, one per account.
type Series struct {
	Target     string      `json:"target"`
	Datapoints []Datapoint `json:"datapoints"`
}

// TargetError takes the place of a target that could not be answered.
type TargetError struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// AccountColumns is the fixed schema of the accounts table.
var AccountColumns = []Column{
	{Text: "Starting Balance", Type: ColumnNumber},
	{Text: "Current Balance", Type: ColumnNumber},
	{Text: "Total Topup", Type: ColumnNumber},
	{Text: "Average APR", Type: ColumnNumber},
	{Text: "Returns", Type: ColumnNumber},
	{Text: "Balance OK", Type: ColumnBool},
	{Text: "Name", Type: ColumnString},
	{Text: "Bank Name", Type: ColumnString},
	{Text: "Account Name", Type: ColumnString},
	{Text: "Account Number", Type: ColumnString},
	{Text: "Sort Code", Type: ColumnString},
	{Text: "Predicted Interest", Type: ColumnNumber},
	{Text: "Interest Min", Type: ColumnNumber},
	{Text: "Interest Max", Type: ColumnNumber},
	{Text: "Instant Withdrawal", Type: ColumnBool},
}

// ParseRequest decodes a query body. A body without a targets list is
// malformed.
func ParseRequest(body []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(body)) == 0 {
		return req, fmt.Errorf("%w: empty body", common.ErrMalformedRequest)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
	}
	if req.Targets == nil {
		return req, fmt.Errorf("%w: missing targets", common.ErrMalformedRequest)
	}
	return req, nil
}
