// Package store persists the consolidated price set: a CSV snapshot that is
// replaced atomically after each run, and database tables that receive
// idempotent upserts.
package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"setopprice/internal/normalize"
	"setopprice/internal/price"
	"setopprice/internal/textfold"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Columns is the header of the consolidated CSV. The fingerprint is derived
// on load and never written.
var Columns = []string{"CODIGO", "DESCRICAO", "UNIDADE", "CUSTO_UNITARIO", "REGIAO", "ANO"}

// headerAliases maps folded header names, current and legacy, to the
// column they stand for.
var headerAliases = map[string]string{
	"CODIGO":               "CODIGO",
	"DESCRICAO":            "DESCRICAO",
	"DESCRICAO DE SERVICO": "DESCRICAO",
	"DESCRICAO DO SERVICO": "DESCRICAO",
	"UNIDADE":              "UNIDADE",
	"CUSTO UNITARIO":       "CUSTO_UNITARIO",
	"REGIAO":               "REGIAO",
	"ANO":                  "ANO",
}

// File is the consolidated CSV snapshot.
type File struct {
	Path string
}

func NewFile(path string) *File { return &File{Path: path} }

func (f *File) Name() string { return f.Path }

// Load reads the snapshot. A missing file is an empty set. Files written
// by older tools may use accented headers or Windows-1252 text.
func (f *File) Load(_ context.Context) (price.Set, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return price.Set{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeCSV(b)
}

// DecodeCSV parses consolidated CSV content into a set.
func DecodeCSV(b []byte) (price.Set, error) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if !utf8.Valid(b) {
		dec, err := charmap.Windows1252.NewDecoder().Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("decode windows-1252: %w", err)
		}
		b = dec
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return price.Set{}, nil
	}

	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range headers {
		key := textfold.Fold(strings.ReplaceAll(h, "_", " "))
		if col, ok := headerAliases[key]; ok {
			if _, dup := idx[col]; !dup {
				idx[col] = i
			}
		}
	}
	for _, col := range []string{"CODIGO", "DESCRICAO", "CUSTO_UNITARIO", "REGIAO"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %s", col)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var records []price.Record
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		code := get(rec, "CODIGO")
		if code == "" || strings.Contains(textfold.Fold(code), "CODIGO") {
			continue
		}
		cost, err := parseStoredCost(get(rec, "CUSTO_UNITARIO"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		year := get(rec, "ANO")
		if year == "" {
			year = price.NoYear
		}
		records = append(records, price.Record{
			Code:        code,
			Description: get(rec, "DESCRICAO"),
			Unit:        get(rec, "UNIDADE"),
			UnitCost:    cost,
			Region:      get(rec, "REGIAO"),
			Year:        year,
		})
	}
	return price.NewSet(records), nil
}

func parseStoredCost(s string) (decimal.Decimal, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}
	if d, ok := normalize.ParseCost(s); ok {
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("invalid cost %q", s)
}

// Replace writes the whole set next to the target and renames it into
// place, so readers see either the old or the new snapshot.
func (f *File) Replace(_ context.Context, set price.Set) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := EncodeCSV(tmp, set.Records()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

// EncodeCSV writes records with a UTF-8 BOM and the consolidated header.
func EncodeCSV(w io.Writer, records []price.Record) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	if err := writeCSVRecord(w, Columns); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{r.Code, r.Description, r.Unit, r.UnitCost.String(), r.Region, r.Year}
		if err := writeCSVRecord(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVRecord(w io.Writer, rec []string) error {
	var b strings.Builder
	for i, field := range rec {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(field, ",\"\n\r") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(field, `"`, `""`))
			b.WriteByte('"')
		} else {
			b.WriteString(field)
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
