package models

import (
	"fmt"
	"strings"
	"time"
)

// StatementKind selects one of the three financial statements.
type StatementKind string

const (
	BalanceSheet    StatementKind = "balance_sheet"
	IncomeStatement StatementKind = "income_statement"
	CashFlow        StatementKind = "cash_flow"
)

// StatementKinds lists the kinds in display order.
var StatementKinds = []StatementKind{BalanceSheet, IncomeStatement, CashFlow}

// Label returns the display name of the statement.
func (k StatementKind) Label() string {
	switch k {
	case BalanceSheet:
		return "Balance Sheet"
	case IncomeStatement:
		return "Income Statement"
	case CashFlow:
		return "Cash Flow Statement"
	}
	return string(k)
}

// ParseStatementKind accepts a canonical id or a display label.
func ParseStatementKind(s string) (StatementKind, error) {
	norm := normalizeChoice(s)
	for _, k := range StatementKinds {
		if norm == string(k) || norm == normalizeChoice(k.Label()) {
			return k, nil
		}
	}
	if norm == "cash_flow_statement" || norm == "cashflow" {
		return CashFlow, nil
	}
	return "", fmt.Errorf("%w: statement %q", ErrInvalidSelection, s)
}

// StatementTable is a raw financial statement as returned by a provider.
// Columns are fiscal period end dates; cells are float64, numeric strings or nil.
type StatementTable struct {
	Ticker  string         `json:"ticker"`
	Kind    StatementKind  `json:"kind"`
	Periods []time.Time    `json:"periods"`
	Rows    []StatementRow `json:"rows"`
}

// StatementRow is one line item of a statement. Values align with Periods.
type StatementRow struct {
	Item   string `json:"item"`
	Values []any  `json:"values"`
}

// StatementView is a statement rescaled to millions with year column labels.
type StatementView struct {
	Kind  StatementKind      `json:"kind"`
	Title string             `json:"title"`
	Years []int              `json:"years"`
	Rows  []StatementViewRow `json:"rows"`
}

// StatementViewRow is one rendered line item. A nil value is an absent cell.
type StatementViewRow struct {
	Item   string     `json:"item"`
	Values []*float64 `json:"values"`
}

func normalizeChoice(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Join(strings.Fields(s), "_")
}
