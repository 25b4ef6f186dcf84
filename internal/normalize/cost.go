package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"setopprice/internal/price"
)

var costStripper = strings.NewReplacer("R$", "", " ", "", "\u00a0", "", "\t", "")

// CoerceCost reads a unit cost from a cell. Number cells are taken as is;
// text goes through ParseCost. Missing cells are not parsable.
func CoerceCost(c price.Cell) (decimal.Decimal, bool) {
	switch c.Kind {
	case price.CellNumber:
		return c.Number, true
	case price.CellText:
		return ParseCost(c.Text)
	}
	return decimal.Zero, false
}

// ParseCost parses Brazilian currency text. "R$ 1.234,56" is 1234.56 and
// "12,5" is 12.5. When both separators are present the last one is the
// decimal point.
func ParseCost(s string) (decimal.Decimal, bool) {
	s = costStripper.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, false
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
