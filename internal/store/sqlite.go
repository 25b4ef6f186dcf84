package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"setopprice/internal/price"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS unit_prices (
	codigo         TEXT NOT NULL,
	descricao      TEXT NOT NULL,
	unidade        TEXT NOT NULL DEFAULT '',
	custo_unitario TEXT NOT NULL,
	regiao         TEXT NOT NULL,
	ano            TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (codigo, regiao, ano)
);
CREATE INDEX IF NOT EXISTS idx_unit_prices_regiao ON unit_prices(regiao, ano);
CREATE INDEX IF NOT EXISTS idx_unit_prices_descricao ON unit_prices(descricao);
`

const sqliteUpsert = `
INSERT INTO unit_prices (codigo, descricao, unidade, custo_unitario, regiao, ano, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (codigo, regiao, ano) DO UPDATE SET
	descricao = excluded.descricao,
	unidade = excluded.unidade,
	custo_unitario = excluded.custo_unitario,
	updated_at = excluded.updated_at`

// SQLite keeps the consolidated records in a local database file. Costs
// are stored as decimal text so they round-trip exactly.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Name() string { return "sqlite" }

// Upsert writes all records in one transaction. Re-applying the same
// records leaves the table unchanged apart from updated_at.
func (s *SQLite) Upsert(ctx context.Context, records []price.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := s.now().UTC().Format(time.RFC3339)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Code, r.Description, r.Unit, r.UnitCost.String(), r.Region, r.Year, ts); err != nil {
			return fmt.Errorf("upsert %s/%s/%s: %w", r.Code, r.Region, r.Year, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unit_prices`).Scan(&n)
	return n, err
}

// Sample returns up to n records with a description, ordered by code.
func (s *SQLite) Sample(ctx context.Context, n int) ([]price.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT codigo, descricao, unidade, custo_unitario, regiao, ano
		FROM unit_prices
		WHERE descricao <> ''
		ORDER BY codigo, regiao, ano
		LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// SearchPage is one page of search results.
type SearchPage struct {
	Query      string         `json:"query"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Offset     int            `json:"offset"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	Items      []price.Record `json:"items"`
}

var searchFields = []string{"codigo", "descricao", "regiao"}

// Search matches query as a substring of code, description or region.
// Prefix matches rank first.
func (s *SQLite) Search(ctx context.Context, query string, page, perPage int) (SearchPage, error) {
	offset, ok := PageOffset(page, perPage)
	if !ok {
		return SearchPage{}, fmt.Errorf("invalid page %d", page)
	}
	pattern := "%" + escapeLikePattern(query) + "%"
	whereParts := make([]string, 0, len(searchFields))
	whereArgs := make([]any, 0, len(searchFields))
	for _, f := range searchFields {
		whereParts = append(whereParts, f+` LIKE ? ESCAPE '\'`)
		whereArgs = append(whereArgs, pattern)
	}
	where := strings.Join(whereParts, " OR ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unit_prices WHERE `+where, whereArgs...).Scan(&total); err != nil {
		return SearchPage{}, err
	}

	prefix := escapeLikePattern(query) + "%"
	order := make([]string, 0, len(searchFields)+1)
	args := append([]any{}, whereArgs...)
	for _, f := range searchFields {
		order = append(order, `CASE WHEN `+f+` LIKE ? ESCAPE '\' THEN 0 ELSE 1 END`)
		args = append(args, prefix)
	}
	order = append(order, "codigo, regiao, ano")
	args = append(args, perPage, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT codigo, descricao, unidade, custo_unitario, regiao, ano
		FROM unit_prices
		WHERE `+where+`
		ORDER BY `+strings.Join(order, ", ")+`
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return SearchPage{}, err
	}
	items, err := scanRecords(rows)
	if err != nil {
		return SearchPage{}, err
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return SearchPage{
		Query:      query,
		Page:       page,
		PerPage:    perPage,
		Offset:     offset,
		Total:      total,
		TotalPages: totalPages,
		Items:      items,
	}, nil
}

func scanRecords(rows *sql.Rows) ([]price.Record, error) {
	defer rows.Close()
	out := []price.Record{}
	for rows.Next() {
		var r price.Record
		var cost string
		if err := rows.Scan(&r.Code, &r.Description, &r.Unit, &cost, &r.Region, &r.Year); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("stored cost %q for %s: %w", cost, r.Code, err)
		}
		r.UnitCost = d
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// PageOffset converts a 1-based page into a row offset, refusing values
// that would overflow int.
func PageOffset(page, perPage int) (int, bool) {
	if page < 1 || perPage < 1 {
		return 0, false
	}
	p := int64(page - 1)
	sz := int64(perPage)
	if p > maxIntValue()/sz {
		return 0, false
	}
	return int(p * sz), true
}

func maxIntValue() int64 {
	return int64(^uint(0) >> 1)
}
