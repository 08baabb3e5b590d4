// Package ofx reads ledger balances out of OFX/QFX statement downloads.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// Source identifies observations produced by this package.
const Source = "ofx"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{logger: slog.Default().With("component", "ofx")}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	// Trim any leading whitespace or blank lines before the header
	content = strings.TrimLeft(content, " \t\r\n")

	// Fix mixed-case SEVERITY values (should be INFO, WARN, or ERROR)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Some SGML exports drop the closing bracket of a bare opening tag
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file and returns one observation per statement,
// taken from the statement's ledger balance.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var observations []model.Observation
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		obs, err := ledgerBalance(string(stmt.BankAcctFrom.AcctID), stmt.BalAmt, stmt.DtAsOf)
		if err != nil {
			p.logger.Warn("Failed to read bank ledger balance",
				"account", stmt.BankAcctFrom.AcctID,
				"error", err)
			continue
		}
		observations = append(observations, obs)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		obs, err := ledgerBalance(string(stmt.CCAcctFrom.AcctID), stmt.BalAmt, stmt.DtAsOf)
		if err != nil {
			p.logger.Warn("Failed to read credit card ledger balance",
				"account", stmt.CCAcctFrom.AcctID,
				"error", err)
			continue
		}
		observations = append(observations, obs)
	}

	p.logger.Info("Parsed OFX file",
		"observations", len(observations),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return observations, nil
}

// ledgerBalance converts a LEDGERBAL aggregate into an observation.
func ledgerBalance(accountID string, amount ofxgo.Amount, asOf ofxgo.Date) (model.Observation, error) {
	if accountID == "" {
		return model.Observation{}, fmt.Errorf("statement has no account ID")
	}
	if asOf.IsZero() {
		return model.Observation{}, fmt.Errorf("ledger balance has no DTASOF")
	}

	value, err := decimal.NewFromString(amount.FloatString(4))
	if err != nil {
		return model.Observation{}, fmt.Errorf("invalid ledger balance %q: %w", amount.String(), err)
	}

	return model.Observation{
		Date:       civil.DateOf(asOf.Time),
		Amount:     value,
		ExternalID: accountID,
		Source:     Source,
	}, nil
}
