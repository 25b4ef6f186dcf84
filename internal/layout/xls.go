package layout

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"

	"setopprice/internal/price"
)

var ErrCorruptWorkbook = errors.New("corrupt workbook")

// The BIFF reader renders numbers through the cell format, so 1234.5 can
// come back as "1,234.50".
var reFormattedNumber = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+\.\d+$`)

// readBIFF decodes a legacy .xls workbook. The reader panics on some
// malformed files; a panic comes back as *Error like any other bad document.
func readBIFF(data []byte) (wb Workbook, err error) {
	defer func() {
		if r := recover(); r != nil {
			wb = nil
			err = &Error{Reasons: []string{fmt.Sprintf("read .xls workbook: %v", r)}, Err: ErrCorruptWorkbook}
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &Error{Reasons: []string{"open .xls workbook: " + err.Error()}, Err: err}
	}
	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			vals := make([]string, max(row.LastCol(), 0))
			for c := max(row.FirstCol(), 0); c < len(vals); c++ {
				vals[c] = row.Col(c)
			}
			rows = append(rows, vals)
		}
		wb = append(wb, textSheet(ws.Name, rows))
	}
	if len(wb) == 0 {
		return nil, &Error{Reasons: []string{"workbook has no sheets"}}
	}
	return wb, nil
}

// textSheet converts rendered cell strings into tagged cells. Numeric
// strings become Number cells; trailing empty rows are dropped.
func textSheet(name string, rows [][]string) Sheet {
	for len(rows) > 0 && blankStrings(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	s := Sheet{Name: name, Rows: make([][]price.Cell, len(rows))}
	for r, row := range rows {
		cells := make([]price.Cell, len(row))
		for c, raw := range row {
			cells[c] = textCell(raw)
		}
		s.Rows[r] = cells
	}
	return s
}

func textCell(raw string) price.Cell {
	v := strings.TrimSpace(raw)
	if v == "" {
		return price.Missing()
	}
	if reFormattedNumber.MatchString(v) {
		v = strings.ReplaceAll(v, ",", "")
	}
	if d, err := decimal.NewFromString(v); err == nil {
		return price.Number(d)
	}
	return price.Text(raw)
}

func blankStrings(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
