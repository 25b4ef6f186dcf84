package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"setopprice/internal/price"
)

const defaultPGBatch = 500

type PostgresOptions struct {
	DSN      string
	Schema   string
	MaxConns int
	// ViaBouncer switches to the simple protocol, which transaction-mode
	// PgBouncer requires.
	ViaBouncer bool
	Batch      int
}

// Postgres upserts records into <schema>.unit_prices.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
	batch int
}

func OpenPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse PG_DSN: %w", err)
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 2
	}
	cfg.MaxConns = int32(opts.MaxConns)
	if opts.ViaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.Batch <= 0 {
		opts.Batch = defaultPGBatch
	}
	p := &Postgres{
		pool:  pool,
		table: pgx.Identifier{opts.Schema, "unit_prices"}.Sanitize(),
		batch: opts.Batch,
	}
	if err := p.ensureSchema(ctx, opts.Schema); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) ensureSchema(ctx context.Context, schema string) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			codigo         text NOT NULL,
			descricao      text NOT NULL,
			unidade        text NOT NULL DEFAULT '',
			custo_unitario numeric NOT NULL CHECK (custo_unitario >= 0),
			regiao         text NOT NULL,
			ano            text NOT NULL,
			updated_at     timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (codigo, regiao, ano)
		)`,
	}
	for _, s := range stmts {
		if _, err := p.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("pg schema: %w", err)
		}
	}
	return nil
}

// Upsert sends the records in batches inside a single transaction, so a
// failure leaves the table as it was.
func (p *Postgres) Upsert(ctx context.Context, records []price.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO ` + p.table + `
		(codigo, descricao, unidade, custo_unitario, regiao, ano, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, now())
		ON CONFLICT (codigo, regiao, ano) DO UPDATE SET
			descricao = EXCLUDED.descricao,
			unidade = EXCLUDED.unidade,
			custo_unitario = EXCLUDED.custo_unitario,
			updated_at = EXCLUDED.updated_at`

	for i := 0; i < len(records); i += p.batch {
		j := min(i+p.batch, len(records))
		b := &pgx.Batch{}
		for _, r := range records[i:j] {
			b.Queue(q, r.Code, r.Description, r.Unit, r.UnitCost.String(), r.Region, r.Year)
		}
		br := tx.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert %s/%s/%s: %w", records[k].Code, records[k].Region, records[k].Year, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+p.table).Scan(&n)
	return n, err
}
