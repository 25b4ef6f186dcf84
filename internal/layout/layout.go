// Package layout locates the header row of a price-list workbook and maps
// the code, description, unit and cost fields to column positions.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// ColumnMap holds zero-based column indexes. -1 means not found.
type ColumnMap struct {
	Code        int
	Description int
	Unit        int
	Cost        int
}

func emptyMap() ColumnMap { return ColumnMap{Code: -1, Description: -1, Unit: -1, Cost: -1} }

// Missing names the fields that have no column.
func (m ColumnMap) Missing() []string {
	var out []string
	if m.Code < 0 {
		out = append(out, "code")
	}
	if m.Description < 0 {
		out = append(out, "description")
	}
	if m.Unit < 0 {
		out = append(out, "unit")
	}
	if m.Cost < 0 {
		out = append(out, "cost")
	}
	return out
}

func (m ColumnMap) Complete() bool { return len(m.Missing()) == 0 }

// Layout is the detection result for one document.
type Layout struct {
	Sheet     string
	Strategy  string
	HeaderRow int
	Columns   ColumnMap
}

// Error reports why no layout could be detected. Layout errors are
// deterministic for a given document and are never retried.
type Error struct {
	Reasons []string
	Err     error
}

func (e *Error) Error() string {
	if len(e.Reasons) == 0 {
		return "layout: no strategy matched"
	}
	return "layout: " + strings.Join(e.Reasons, "; ")
}

func (e *Error) Unwrap() error { return e.Err }

// Strategy is one way of reading a document variant. Match is a cheap
// shape check; Detect does the actual mapping.
type Strategy interface {
	Name() string
	Match(Sheet) bool
	Detect(Sheet) (Layout, error)
}

// Detector tries its strategies in order on every sheet.
type Detector struct {
	Strategies []Strategy
}

// NewDetector returns a detector with header search first and the fixed
// report offset as fallback.
func NewDetector() *Detector {
	return &Detector{Strategies: []Strategy{HeaderSearch{}, NewFixedOffset()}}
}

// Detect returns the first complete layout. Report sheets are tried
// before the others, which keep workbook order.
func (d *Detector) Detect(wb Workbook) (Layout, error) {
	if len(wb) == 0 {
		return Layout{}, &Error{Reasons: []string{"workbook has no sheets"}}
	}
	var reasons []string
	for _, sheet := range sheetOrder(wb) {
		for _, s := range d.Strategies {
			if !s.Match(sheet) {
				continue
			}
			l, err := s.Detect(sheet)
			if err == nil {
				return l, nil
			}
			reasons = append(reasons, fmt.Sprintf("sheet %q: %s: %v", sheet.Name, s.Name(), err))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no strategy applies to any sheet")
	}
	return Layout{}, &Error{Reasons: reasons}
}

func sheetOrder(wb Workbook) []Sheet {
	out := make([]Sheet, 0, len(wb))
	for _, s := range wb {
		if isReportSheet(s.Name) {
			out = append(out, s)
		}
	}
	for _, s := range wb {
		if !isReportSheet(s.Name) {
			out = append(out, s)
		}
	}
	return out
}
