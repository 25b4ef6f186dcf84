package layout

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"setopprice/internal/price"
	"setopprice/internal/sheetgen"
)

func readFixture(t *testing.T, sheets ...sheetgen.Sheet) Workbook {
	t.Helper()
	data, err := sheetgen.Bytes(sheets...)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	wb, err := ReadWorkbook(data)
	if err != nil {
		t.Fatalf("ReadWorkbook error: %v", err)
	}
	return wb
}

func TestHeaderSearchFindsColumns(t *testing.T) {
	wb := readFixture(t, sheetgen.Sheet{Name: "Relatório", Rows: [][]any{
		{"SECRETARIA DE ESTADO DE INFRAESTRUTURA"},
		{},
		{"CÓDIGO", "DESCRIÇÃO", "UNIDADE", "CUSTO"},
		{"ED-50156", "Alvenaria de vedação", "m2", 89.9},
	}})
	l, err := NewDetector().Detect(wb)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	want := ColumnMap{Code: 0, Description: 1, Unit: 2, Cost: 3}
	if l.Columns != want {
		t.Fatalf("Columns = %+v, want %+v", l.Columns, want)
	}
	if l.HeaderRow != 2 || l.Strategy != "header-search" || l.Sheet != "Relatório" {
		t.Fatalf("unexpected layout %+v", l)
	}
	rows := wb.DataRows(l)
	if len(rows) != 1 || rows[0][0].String() != "ED-50156" {
		t.Fatalf("unexpected data rows %+v", rows)
	}
	if rows[0][3].Kind != price.CellNumber {
		t.Fatalf("expected numeric cost cell, got kind %d", rows[0][3].Kind)
	}
}

func TestHeaderSearchShiftedAndRenamed(t *testing.T) {
	wb := readFixture(t, sheetgen.Sheet{Name: "Plan1", Rows: [][]any{
		{nil, "Item", "Código", "Descrição do Serviço", "Custo Material", "Unid.", "Custo Unitário (R$)"},
	}})
	l, err := NewDetector().Detect(wb)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	want := ColumnMap{Code: 2, Description: 3, Unit: 5, Cost: 6}
	if l.Columns != want {
		t.Fatalf("Columns = %+v, want %+v", l.Columns, want)
	}
}

func TestHeaderSearchToleratesTypo(t *testing.T) {
	row := []price.Cell{price.Text("CODIGO"), price.Text("Descrisão"), price.Text("UNIDADE"), price.Text("CUSTO")}
	l, err := HeaderSearch{}.Detect(Sheet{Name: "x", Rows: [][]price.Cell{row}})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.Columns.Description != 1 {
		t.Fatalf("expected fuzzy description match, got %+v", l.Columns)
	}
}

func TestHeaderSearchDeepHeader(t *testing.T) {
	rows := make([][]any, 0, 252)
	for i := 0; i < 250; i++ {
		rows = append(rows, []any{"Observação geral do caderno de encargos"})
	}
	rows = append(rows,
		[]any{"CÓDIGO", "DESCRIÇÃO", "UNIDADE", "CUSTO"},
		[]any{"ED-50156", "Alvenaria de vedação", "m2", 89.9},
	)
	wb := readFixture(t, sheetgen.Sheet{Name: "Planilha1", Rows: rows})
	l, err := NewDetector().Detect(wb)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.HeaderRow != 250 || l.Columns != (ColumnMap{Code: 0, Description: 1, Unit: 2, Cost: 3}) {
		t.Fatalf("unexpected layout %+v", l)
	}
}

func TestHeaderSearchAbbreviatedCode(t *testing.T) {
	wb := readFixture(t, sheetgen.Sheet{Name: "Plan1", Rows: [][]any{
		{"Cód.", "Descrição", "Unid.", "Custo Unitário"},
		{"ED-50156", "Alvenaria de vedação", "m2", 89.9},
	}})
	l, err := NewDetector().Detect(wb)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.HeaderRow != 0 || l.Columns != (ColumnMap{Code: 0, Description: 1, Unit: 2, Cost: 3}) {
		t.Fatalf("unexpected layout %+v", l)
	}
}

func TestHeaderSearchPartialIsError(t *testing.T) {
	row := []price.Cell{price.Text("CÓDIGO"), price.Text("DESCRIÇÃO"), price.Text("UNIDADE")}
	_, err := HeaderSearch{}.Detect(Sheet{Name: "x", Rows: [][]price.Cell{row}})
	if err == nil {
		t.Fatalf("expected error for missing cost column")
	}
}

func TestDetectNoHeaderRow(t *testing.T) {
	wb := readFixture(t, sheetgen.Sheet{Name: "Plan1", Rows: [][]any{
		{"foo", "bar"},
		{"1", "2"},
	}})
	_, err := NewDetector().Detect(wb)
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(le.Reasons) == 0 {
		t.Fatalf("expected reasons on layout error")
	}
}

func reportRows(n, width int) [][]price.Cell {
	rows := make([][]price.Cell, n)
	for i := range rows {
		rows[i] = []price.Cell{price.Text("cabecalho")}
	}
	data := make([]price.Cell, width)
	for i := range data {
		data[i] = price.Text("x")
	}
	rows[n-1] = data
	return rows
}

func TestFixedOffset(t *testing.T) {
	s := Sheet{Name: "Relatório", Rows: reportRows(30, 8)}
	l, err := NewDetector().Detect(Workbook{s})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.Strategy != "fixed-offset" || l.HeaderRow != 25 {
		t.Fatalf("unexpected layout %+v", l)
	}
	want := ColumnMap{Code: 0, Description: 2, Unit: 6, Cost: 7}
	if l.Columns != want {
		t.Fatalf("Columns = %+v, want %+v", l.Columns, want)
	}
}

func TestFixedOffsetTooNarrow(t *testing.T) {
	s := Sheet{Name: "RELATORIO", Rows: reportRows(30, 7)}
	_, err := NewDetector().Detect(Workbook{s})
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestFixedOffsetOnlyOnReportSheet(t *testing.T) {
	if NewFixedOffset().Match(Sheet{Name: "Plan1", Rows: reportRows(30, 8)}) {
		t.Fatalf("fixed-offset must not match non-report sheets")
	}
	if NewFixedOffset().Match(Sheet{Name: "Relatório", Rows: reportRows(10, 8)}) {
		t.Fatalf("fixed-offset must not match short sheets")
	}
}

func TestReportSheetProbedFirst(t *testing.T) {
	header := []price.Cell{price.Text("CÓDIGO"), price.Text("DESCRIÇÃO"), price.Text("UNIDADE"), price.Text("CUSTO")}
	wb := Workbook{
		{Name: "Capa", Rows: [][]price.Cell{header}},
		{Name: "Relatório", Rows: [][]price.Cell{{price.Missing()}, header}},
	}
	l, err := NewDetector().Detect(wb)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.Sheet != "Relatório" || l.HeaderRow != 1 {
		t.Fatalf("expected report sheet first, got %+v", l)
	}
}

func TestReadWorkbookRejectsGarbage(t *testing.T) {
	_, err := ReadWorkbook([]byte("<html>not found</html>"))
	var le *Error
	if !errors.As(err, &le) || !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported *Error for html, got %v", err)
	}
}

func TestReadWorkbookCorruptXLS(t *testing.T) {
	data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 32)...)
	wb, err := ReadWorkbook(data)
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *Error for a truncated .xls, got %v (%d sheets)", err, len(wb))
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf(".xls should be read, not refused as unsupported: %v", err)
	}
}

func TestTextSheetFromXLS(t *testing.T) {
	s := textSheet("Relatório", [][]string{
		{"CÓDIGO", "DESCRIÇÃO", "UNIDADE", "CUSTO"},
		{"12345", "Alvenaria de vedação", "m2", "1,234.50"},
		{"ED-1", "Chapisco", "", "R$ 4,50"},
		nil,
		{"", " "},
	})
	if len(s.Rows) != 3 {
		t.Fatalf("trailing blank rows should be dropped, got %d rows", len(s.Rows))
	}
	code, cost := s.Rows[1][0], s.Rows[1][3]
	if code.Kind != price.CellNumber || code.String() != "12345" {
		t.Fatalf("code cell = %+v", code)
	}
	if cost.Kind != price.CellNumber || !cost.Number.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("cost cell = %+v", cost)
	}
	if s.Rows[2][3].Kind != price.CellText || !s.Rows[2][2].IsMissing() {
		t.Fatalf("unexpected row %+v", s.Rows[2])
	}

	l, err := NewDetector().Detect(Workbook{s})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if l.HeaderRow != 0 || l.Columns != (ColumnMap{Code: 0, Description: 1, Unit: 2, Cost: 3}) {
		t.Fatalf("unexpected layout %+v", l)
	}
}

func TestReadWorkbookCellKinds(t *testing.T) {
	wb := readFixture(t, sheetgen.Sheet{Name: "Plan1", Rows: [][]any{
		{12345, "R$ 1.234,56", nil, "texto"},
	}})
	row := wb[0].Rows[0]
	if row[0].Kind != price.CellNumber || row[0].String() != "12345" {
		t.Fatalf("cell 0 = %+v", row[0])
	}
	if row[1].Kind != price.CellText {
		t.Fatalf("cell 1 kind = %d, want text", row[1].Kind)
	}
	if !row[2].IsMissing() {
		t.Fatalf("cell 2 should be missing, got %+v", row[2])
	}
}
