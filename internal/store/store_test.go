package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"setopprice/internal/price"
)

func sampleRecords() []price.Record {
	return []price.Record{
		{Code: "CE-12345", Description: "Alvenaria de vedação, bloco cerâmico", Unit: "m2", UnitCost: decimal.RequireFromString("1234.56"), Region: "Central", Year: "2024"},
		{Code: "ED-50156", Description: `Porta "lisa" de madeira`, Unit: "un", UnitCost: decimal.RequireFromString("0"), Region: "Norte", Year: "2023"},
		{Code: "CE-1", Description: "Escavação manual", Unit: "", UnitCost: decimal.RequireFromString("12.5"), Region: "Central", Year: "N/A"},
	}
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFile(filepath.Join(t.TempDir(), "out", "planilhas_consolidadas.csv"))
	want := price.NewSet(sampleRecords())
	if err := f.Replace(ctx, want); err != nil {
		t.Fatalf("Replace error: %v", err)
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.HasPrefix(raw, utf8BOM) {
		t.Fatalf("expected UTF-8 BOM")
	}
	header := strings.SplitN(string(bytes.TrimPrefix(raw, utf8BOM)), "\n", 2)[0]
	if header != "CODIGO,DESCRICAO,UNIDADE,CUSTO_UNITARIO,REGIAO,ANO" {
		t.Fatalf("unexpected header %q", header)
	}
	got, err := f.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d records, want %d", len(got), len(want))
	}
	for fp, r := range want {
		if !got[fp].Equal(r) {
			t.Fatalf("record mismatch: got %+v want %+v", got[fp], r)
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(f.Path))
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestFileLoadMissingIsEmpty(t *testing.T) {
	set, err := NewFile(filepath.Join(t.TempDir(), "nope.csv")).Load(context.Background())
	if err != nil || len(set) != 0 {
		t.Fatalf("Load missing = %d records, %v", len(set), err)
	}
}

func TestDecodeLegacyHeaders(t *testing.T) {
	legacy := "\ufeffCÓDIGO,DESCRIÇÃO DE SERVIÇO,UNIDADE,CUSTO UNITÁRIO,REGIÃO,ANO\n" +
		"CE-1,Escavação manual,m3,\"1.234,56\",Central,2024\n" +
		"CÓDIGO,DESCRIÇÃO DE SERVIÇO,UNIDADE,CUSTO UNITÁRIO,REGIÃO,ANO\n" +
		"CE-2,Reaterro compactado,m3,,Central,\n"
	set, err := DecodeCSV([]byte(legacy))
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 records, got %d", len(set))
	}
	recs := set.Records()
	if !recs[0].UnitCost.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("unexpected cost %s", recs[0].UnitCost)
	}
	if recs[0].Year != "2024" || recs[1].Year != price.NoYear {
		t.Fatalf("unexpected years %q %q", recs[0].Year, recs[1].Year)
	}
}

func TestDecodeWindows1252(t *testing.T) {
	text := "CODIGO,DESCRICAO,UNIDADE,CUSTO_UNITARIO,REGIAO,ANO\nCE-1,Escavação manual,m3,10,Região Sul,2024\n"
	enc, err := charmap.Windows1252.NewEncoder().String(text)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	set, err := DecodeCSV([]byte(enc))
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	r := set.Records()[0]
	if r.Description != "Escavação manual" || r.Region != "Região Sul" {
		t.Fatalf("unexpected decoded record %+v", r)
	}
}

func TestDecodeRejectsBadCost(t *testing.T) {
	_, err := DecodeCSV([]byte("CODIGO,DESCRICAO,UNIDADE,CUSTO_UNITARIO,REGIAO,ANO\nCE-1,x,m,abc,Sul,2024\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line error, got %v", err)
	}
}

func TestDecodeMissingColumn(t *testing.T) {
	if _, err := DecodeCSV([]byte("CODIGO,DESCRICAO\nCE-1,x\n")); err == nil {
		t.Fatalf("expected error for missing columns")
	}
}

func TestSQLiteUpsertIdempotentAndSearch(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "prices.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer db.Close()

	recs := sampleRecords()
	for i := 0; i < 2; i++ {
		if err := db.Upsert(ctx, recs); err != nil {
			t.Fatalf("Upsert #%d error: %v", i+1, err)
		}
	}
	n, err := db.Count(ctx)
	if err != nil || n != len(recs) {
		t.Fatalf("Count = %d, %v; want %d", n, err, len(recs))
	}

	updated := recs[0]
	updated.UnitCost = decimal.RequireFromString("1300")
	if err := db.Upsert(ctx, []price.Record{updated}); err != nil {
		t.Fatalf("Upsert update error: %v", err)
	}
	page, err := db.Search(ctx, "CE-12345", 1, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || !page.Items[0].UnitCost.Equal(decimal.NewFromInt(1300)) {
		t.Fatalf("unexpected search page %+v", page)
	}

	page, err = db.Search(ctx, "Central", 2, 1)
	if err != nil {
		t.Fatalf("Search page 2 error: %v", err)
	}
	if page.Total != 2 || page.TotalPages != 2 || page.Offset != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected paging %+v", page)
	}

	page, err = db.Search(ctx, "100%", 1, 10)
	if err != nil || page.Total != 0 {
		t.Fatalf("expected escaped wildcard to match nothing, got %+v, %v", page, err)
	}

	sample, err := db.Sample(ctx, 2)
	if err != nil || len(sample) != 2 || sample[0].Code != "CE-1" {
		t.Fatalf("unexpected sample %+v, %v", sample, err)
	}
}

func TestPageOffset(t *testing.T) {
	if off, ok := PageOffset(3, 10); !ok || off != 20 {
		t.Fatalf("PageOffset(3,10) = %d, %v", off, ok)
	}
	if _, ok := PageOffset(0, 10); ok {
		t.Fatalf("expected page 0 to be rejected")
	}
	if _, ok := PageOffset(int(maxIntValue()), 10); ok {
		t.Fatalf("expected overflow to be rejected")
	}
}

func TestPostgresUpsert(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresOptions{DSN: dsn, Schema: "setop_test", Batch: 2})
	if err != nil {
		t.Fatalf("OpenPostgres error: %v", err)
	}
	defer pg.Close()
	if _, err := pg.pool.Exec(ctx, `TRUNCATE `+pg.table); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	recs := sampleRecords()
	for i := 0; i < 2; i++ {
		if err := pg.Upsert(ctx, recs); err != nil {
			t.Fatalf("Upsert #%d error: %v", i+1, err)
		}
	}
	n, err := pg.Count(ctx)
	if err != nil || n != len(recs) {
		t.Fatalf("Count = %d, %v; want %d", n, err, len(recs))
	}
}
