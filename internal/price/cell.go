package price

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CellKind tags the variant held by a Cell.
type CellKind uint8

const (
	CellMissing CellKind = iota
	CellText
	CellNumber
)

// Cell is a raw spreadsheet value before coercion.
type Cell struct {
	Kind   CellKind
	Text   string
	Number decimal.Decimal
}

func Missing() Cell { return Cell{Kind: CellMissing} }

// Text returns a text cell; blank text collapses to Missing.
func Text(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Missing()
	}
	return Cell{Kind: CellText, Text: s}
}

func Number(d decimal.Decimal) Cell { return Cell{Kind: CellNumber, Number: d} }

func (c Cell) IsMissing() bool { return c.Kind == CellMissing }

// String renders the cell as trimmed text. Integral numbers have no
// fractional part, so a numeric code 12345 renders as "12345".
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text)
	case CellNumber:
		if c.Number.IsInteger() {
			return c.Number.Truncate(0).String()
		}
		return c.Number.String()
	default:
		return ""
	}
}

// At returns the cell at index i of row, or Missing when out of range.
func At(row []Cell, i int) Cell {
	if i < 0 || i >= len(row) {
		return Missing()
	}
	return row[i]
}
