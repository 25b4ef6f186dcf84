package layout

import (
	"errors"
	"fmt"
	"strings"

	"setopprice/internal/price"
	"setopprice/internal/textfold"
)

const (
	fuzzyMinLen   = 5
	fuzzyMinScore = 0.8
)

type field int

const (
	fieldCode field = iota
	fieldDescription
	fieldUnit
	fieldCost
)

// keywords are folded token prefixes per field, checked in field order.
var keywords = [...][]string{
	fieldCode:        {"CODIGO", "COD"},
	fieldDescription: {"DESCRICAO", "DISCRIMINACAO"},
	fieldUnit:        {"UNIDADE", "UNID", "UN", "UND"},
	fieldCost:        {"CUSTO", "PRECO"},
}

var errNoHeaderRow = errors.New("no row with a CODIGO header")

// HeaderSearch scans rows top to bottom for the header row that names
// every field.
type HeaderSearch struct{}

func (HeaderSearch) Name() string { return "header-search" }

func (HeaderSearch) Match(s Sheet) bool { return len(s.Rows) > 0 }

func (h HeaderSearch) Detect(s Sheet) (Layout, error) {
	var partial []string
	for r := range s.Rows {
		if !isHeaderRow(s.Rows[r]) {
			continue
		}
		cols := mapColumns(s.Rows[r])
		if cols.Complete() {
			return Layout{Sheet: s.Name, Strategy: h.Name(), HeaderRow: r, Columns: cols}, nil
		}
		if partial == nil {
			partial = cols.Missing()
		}
	}
	if partial != nil {
		return Layout{}, fmt.Errorf("header row found but missing %s", strings.Join(partial, ", "))
	}
	return Layout{}, errNoHeaderRow
}

func isHeaderRow(row []price.Cell) bool {
	for _, c := range row {
		if c.Kind != price.CellText {
			continue
		}
		toks := textfold.Tokens(c.Text)
		if len(toks) == 0 {
			continue
		}
		if f, ok := classify(toks); ok && f == fieldCode {
			return true
		}
	}
	return false
}

// mapColumns assigns each column to at most one field and each field to its
// first matching column. Cost prefers a unit-cost column when the row has
// several cost columns.
func mapColumns(row []price.Cell) ColumnMap {
	m := emptyMap()
	unitCostSeen := false
	for c, cell := range row {
		if cell.Kind != price.CellText {
			continue
		}
		toks := textfold.Tokens(cell.Text)
		if len(toks) == 0 {
			continue
		}
		f, ok := classify(toks)
		if !ok {
			continue
		}
		switch f {
		case fieldCode:
			if m.Code < 0 {
				m.Code = c
			}
		case fieldDescription:
			if m.Description < 0 {
				m.Description = c
			}
		case fieldUnit:
			if m.Unit < 0 {
				m.Unit = c
			}
		case fieldCost:
			unitCost := hasToken(toks, "UNITARIO")
			if m.Cost < 0 || (unitCost && !unitCostSeen) {
				m.Cost = c
				unitCostSeen = unitCost
			}
		}
	}
	return m
}

// classify looks at the leading token of a header cell. Single-letter
// abbreviations like UN only match as an exact token.
func classify(toks []string) (field, bool) {
	lead := toks[0]
	for f := fieldCode; f <= fieldCost; f++ {
		for _, kw := range keywords[f] {
			if tokenMatches(lead, kw, len(kw) < 4) {
				return f, true
			}
		}
	}
	return 0, false
}

func tokenMatches(tok, kw string, exact bool) bool {
	if tok == kw {
		return true
	}
	if exact {
		return false
	}
	if strings.HasPrefix(tok, kw) {
		return true
	}
	if len(tok) >= fuzzyMinLen && len(kw) >= fuzzyMinLen {
		return textfold.Similarity(tok, kw) >= fuzzyMinScore
	}
	return false
}

func hasToken(toks []string, want string) bool {
	for _, t := range toks {
		if t == want {
			return true
		}
	}
	return false
}
