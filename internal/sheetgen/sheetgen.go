// Package sheetgen writes small OOXML workbooks shaped like the agency's
// price lists. Tests use it to build fixtures in memory and
// cmd/make-sample-sheet uses it to produce files for local layout checks.
package sheetgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet. Row values may be string, numeric or nil; nil
// leaves the cell empty.
type Sheet struct {
	Name string
	Rows [][]any
}

// Bytes renders the sheets as an .xlsx document.
func Bytes(sheets ...Sheet) ([]byte, error) {
	f, err := build(sheets)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the sheets to path, creating parent directories.
func Write(path string, sheets ...Sheet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := build(sheets)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func build(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, errors.New("no sheets")
	}
	f := excelize.NewFile()
	def := f.GetSheetName(0)
	for i, sh := range sheets {
		if sh.Name == "" {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %d has no name", i)
		}
		if i == 0 {
			f.SetSheetName(def, sh.Name)
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("add sheet %q: %w", sh.Name, err)
		}
		for r, row := range sh.Rows {
			for c, v := range row {
				if v == nil {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					_ = f.Close()
					return nil, err
				}
				if err := f.SetCellValue(sh.Name, cell, v); err != nil {
					_ = f.Close()
					return nil, fmt.Errorf("set %s!%s: %w", sh.Name, cell, err)
				}
			}
		}
	}
	return f, nil
}
