package layout

import "fmt"

// FixedOffset reads the report sheet variant whose header sits at a fixed
// row and whose fields sit at fixed columns.
type FixedOffset struct {
	HeaderRow  int
	MinColumns int
	Columns    ColumnMap
}

func NewFixedOffset() FixedOffset {
	return FixedOffset{
		HeaderRow:  25,
		MinColumns: 8,
		Columns:    ColumnMap{Code: 0, Description: 2, Unit: 6, Cost: 7},
	}
}

func (FixedOffset) Name() string { return "fixed-offset" }

func (f FixedOffset) Match(s Sheet) bool {
	return isReportSheet(s.Name) && len(s.Rows) > f.HeaderRow
}

func (f FixedOffset) Detect(s Sheet) (Layout, error) {
	if len(s.Rows) <= f.HeaderRow {
		return Layout{}, fmt.Errorf("sheet has %d rows, header expected at row %d", len(s.Rows), f.HeaderRow+1)
	}
	if w := s.Width(f.HeaderRow); w < f.MinColumns {
		return Layout{}, fmt.Errorf("sheet has %d columns, want at least %d", w, f.MinColumns)
	}
	return Layout{Sheet: s.Name, Strategy: f.Name(), HeaderRow: f.HeaderRow, Columns: f.Columns}, nil
}
