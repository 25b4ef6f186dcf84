package layout

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"setopprice/internal/price"
	"setopprice/internal/textfold"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sheet is one worksheet converted to tagged cells.
type Sheet struct {
	Name string
	Rows [][]price.Cell
}

// Width is the widest row at or after row index from.
func (s Sheet) Width(from int) int {
	w := 0
	for i := from; i < len(s.Rows); i++ {
		if n := len(s.Rows[i]); n > w {
			w = n
		}
	}
	return w
}

type Workbook []Sheet

// Sheet returns the sheet with the given name.
func (wb Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range wb {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// DataRows returns the rows below the header row of a detected layout.
func (wb Workbook) DataRows(l Layout) [][]price.Cell {
	s, ok := wb.Sheet(l.Sheet)
	if !ok || l.HeaderRow+1 >= len(s.Rows) {
		return nil
	}
	return s.Rows[l.HeaderRow+1:]
}

// ReadWorkbook decodes an OOXML (.xlsx) or legacy BIFF (.xls) workbook.
// Anything else comes back as *Error.
func ReadWorkbook(data []byte) (Workbook, error) {
	switch {
	case bytes.HasPrefix(data, ole2Magic):
		return readBIFF(data)
	case !bytes.HasPrefix(data, zipMagic):
		return nil, &Error{Reasons: []string{"not a spreadsheet document"}, Err: ErrUnsupportedFormat}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Reasons: []string{"open workbook: " + err.Error()}, Err: err}
	}
	defer func() { _ = f.Close() }()

	var wb Workbook
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &Error{Reasons: []string{fmt.Sprintf("read sheet %q: %v", name, err)}, Err: err}
		}
		sheet := Sheet{Name: name, Rows: make([][]price.Cell, len(rows))}
		for r, row := range rows {
			cells := make([]price.Cell, len(row))
			for c, raw := range row {
				cells[c] = convertCell(f, name, r, c, raw)
			}
			sheet.Rows[r] = cells
		}
		wb = append(wb, sheet)
	}
	if len(wb) == 0 {
		return nil, &Error{Reasons: []string{"workbook has no sheets"}}
	}
	return wb, nil
}

func convertCell(f *excelize.File, sheet string, r, c int, raw string) price.Cell {
	if strings.TrimSpace(raw) == "" {
		return price.Missing()
	}
	name, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return price.Text(raw)
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return price.Text(raw)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if d, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
			return price.Number(d)
		}
	}
	return price.Text(raw)
}

func isReportSheet(name string) bool {
	return textfold.Fold(name) == "RELATORIO"
}
