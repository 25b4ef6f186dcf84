package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"setopprice/internal/price"
	"setopprice/internal/sheetgen"
	"setopprice/internal/store"
)

const (
	defaultInput  = "planilhas_consolidadas.csv"
	defaultOutput = "outputs/setop_sample.xlsx"
	defaultSeed   = int64(20260224)
	reportHeader  = 25
)

type options struct {
	layout      string // header | report
	headerRow   int
	shuffleCols bool
	textCosts   bool
	seed        int64
}

func main() {
	inPath := flag.String("input", defaultInput, "Consolidated CSV to sample from")
	outPath := flag.String("output", defaultOutput, "Output .xlsx path")
	seed := flag.Int64("seed", defaultSeed, "Deterministic shuffle seed")
	sampleRows := flag.Int("sample-rows", 200, "Keep only this many rows after shuffling (0 = all)")
	region := flag.String("region", "", "Only rows of this region")
	layout := flag.String("layout", "header", "header (titled header row) or report (fixed columns under row 26)")
	headerRow := flag.Int("header-row", 3, "Header row index for -layout header (0-based)")
	shuffleCols := flag.Bool("shuffle-cols", false, "Shuffle column order and header wording (-layout header)")
	textCosts := flag.Bool("text-costs", false, "Write costs as \"R$ 1.234,56\" text instead of numbers")
	flag.Parse()

	if *layout != "header" && *layout != "report" {
		fatalf("unknown -layout %q", *layout)
	}

	set, err := store.NewFile(*inPath).Load(context.Background())
	if err != nil {
		fatalf("load consolidated csv: %v", err)
	}
	records := pickRecords(set.Records(), *region, *seed, *sampleRows)
	if len(records) == 0 {
		fatalf("no records to write (region=%q)", *region)
	}

	sheet := buildSheet(records, options{
		layout:      *layout,
		headerRow:   *headerRow,
		shuffleCols: *shuffleCols,
		textCosts:   *textCosts,
		seed:        *seed,
	})
	if err := sheetgen.Write(*outPath, sheet); err != nil {
		fatalf("write workbook: %v", err)
	}

	fmt.Printf("Input:  %s\n", *inPath)
	fmt.Printf("Output: %s\n", *outPath)
	fmt.Printf("Seed:   %d\n", *seed)
	fmt.Printf("Layout: %s\n", *layout)
	fmt.Printf("Rows:   %s\n", humanize.Comma(int64(len(records))))
	fmt.Println("Header:")
	for i, v := range sheet.Rows[headerIndex(sheet)] {
		if s, ok := v.(string); ok && s != "" {
			fmt.Printf("  col %d -> %s\n", i, s)
		}
	}
}

func pickRecords(all []price.Record, region string, seed int64, n int) []price.Record {
	var out []price.Record
	for _, r := range all {
		if region == "" || strings.EqualFold(r.Region, region) {
			out = append(out, r)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

var headerVariants = [4][]string{
	{"CÓDIGO", "Código", "CODIGO SETOP"},
	{"DESCRIÇÃO", "Descrição do Serviço", "DISCRIMINAÇÃO"},
	{"UNIDADE", "Unid.", "UN"},
	{"CUSTO UNITÁRIO", "Preço Unitário (R$)", "CUSTO TOTAL"},
}

// buildSheet lays the records out the way the agency's workbooks do.
// "header" writes a few title lines and a named header row; "report"
// mimics the Relatório export, whose header labels carry no field names
// and whose columns sit at fixed offsets.
func buildSheet(records []price.Record, o options) sheetgen.Sheet {
	if o.layout == "report" {
		return reportSheet(records, o.textCosts)
	}

	rng := rand.New(rand.NewSource(o.seed))
	order := []int{0, 1, 2, 3}
	header := make([]string, 4)
	for f := range header {
		header[f] = headerVariants[f][0]
	}
	if o.shuffleCols {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for f := range header {
			header[f] = headerVariants[f][rng.Intn(len(headerVariants[f]))]
		}
	}

	rows := make([][]any, 0, o.headerRow+1+len(records))
	rows = append(rows, preamble(records[0].Region, records[0].Year)...)
	for len(rows) < o.headerRow {
		rows = append(rows, []any{})
	}
	rows = rows[:max(o.headerRow, 0)]

	hdr := make([]any, 4)
	for pos, f := range order {
		hdr[pos] = header[f]
	}
	rows = append(rows, hdr)
	for _, r := range records {
		vals := [4]any{r.Code, r.Description, r.Unit, costValue(r.UnitCost, o.textCosts)}
		row := make([]any, 4)
		for pos, f := range order {
			row[pos] = vals[f]
		}
		rows = append(rows, row)
	}
	return sheetgen.Sheet{Name: "Planilha", Rows: rows}
}

func reportSheet(records []price.Record, textCosts bool) sheetgen.Sheet {
	rows := preamble(records[0].Region, records[0].Year)
	for len(rows) < reportHeader {
		rows = append(rows, []any{})
	}
	rows = append(rows, []any{"Nº", "Fonte", "Serviço", "Mão de obra", "Material", "Equipamento", "Un.", "R$"})
	for _, r := range records {
		rows = append(rows, []any{r.Code, "SETOP", r.Description, nil, nil, nil, r.Unit, costValue(r.UnitCost, textCosts)})
	}
	return sheetgen.Sheet{Name: "Relatório", Rows: rows}
}

func preamble(region, year string) [][]any {
	return [][]any{
		{"SECRETARIA DE ESTADO DE INFRAESTRUTURA, MOBILIDADE E PARCERIAS"},
		{"PLANILHA DE PREÇOS UNITÁRIOS - REGIÃO " + strings.ToUpper(region)},
		{"Data base: " + year},
	}
}

func headerIndex(s sheetgen.Sheet) int {
	if s.Name == "Relatório" {
		return reportHeader
	}
	for i, row := range s.Rows {
		if len(row) == 4 {
			return i
		}
	}
	return 0
}

func costValue(d decimal.Decimal, asText bool) any {
	if !asText {
		return d.InexactFloat64()
	}
	return "R$ " + humanize.FormatFloat("#.###,##", d.InexactFloat64())
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
