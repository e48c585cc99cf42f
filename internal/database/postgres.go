package database

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %v", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	return dbpool, nil
}

// StoreConfig names the destination tables. Only the lifecycle table is never
// created here: it belongs to an external stored procedure.
type StoreConfig struct {
	LedgerTable     string
	AnchorTable     string
	LifecycleTable  string
	DiffDetailTable string
	DiffTotalTable  string
	LifecycleProc   string
}

type PostgresStore struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
	cfg    StoreConfig
	log    *logrus.Logger
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, cfg StoreConfig, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{dbpool: pool, ctx: ctx, cfg: cfg, log: log}
}

func (s *PostgresStore) CreateLedgerTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		department TEXT NOT NULL,
		oper_day DATE NOT NULL,
		product_num TEXT NOT NULL,
		product_name TEXT,
		product_type TEXT,
		measure_unit TEXT,
		document TEXT,
		transaction_type TEXT,
		turnover NUMERIC(18, 6) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`, pgx.Identifier{s.cfg.LedgerTable}.Sanitize())

	_, err := s.dbpool.Exec(s.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating %s table: %v", s.cfg.LedgerTable, err)
	}

	// One partial unique index per conflict-key family. NULLS NOT DISTINCT so
	// rows without a transaction type still merge instead of piling up.
	indexes := []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (department, product_num, document, transaction_type) NULLS NOT DISTINCT WHERE document IS NOT NULL;`,
			pgx.Identifier{s.cfg.LedgerTable + "_document_key"}.Sanitize(), pgx.Identifier{s.cfg.LedgerTable}.Sanitize()),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (department, oper_day, product_num, transaction_type) NULLS NOT DISTINCT WHERE document IS NULL;`,
			pgx.Identifier{s.cfg.LedgerTable + "_day_key"}.Sanitize(), pgx.Identifier{s.cfg.LedgerTable}.Sanitize()),
	}

	for _, index := range indexes {
		if _, err := s.dbpool.Exec(s.ctx, index); err != nil {
			return fmt.Errorf("error creating ledger index: %v", err)
		}
	}

	return nil
}

// CreateAnchorTable creates the hand-curated fact table when absent. The
// engine never writes rows into it.
func (s *PostgresStore) CreateAnchorTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		department TEXT NOT NULL,
		product_num TEXT NOT NULL,
		anchor_day DATE NOT NULL,
		production_day DATE NOT NULL,
		fact_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		product_name TEXT,
		UNIQUE (department, product_num, anchor_day, production_day)
	);`, pgx.Identifier{s.cfg.AnchorTable}.Sanitize())

	_, err := s.dbpool.Exec(s.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating %s table: %v", s.cfg.AnchorTable, err)
	}

	return nil
}

func (s *PostgresStore) CreateDiffTables() error {
	detail := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		department TEXT NOT NULL,
		product_num TEXT NOT NULL,
		anchor_day DATE NOT NULL,
		production_day DATE NOT NULL,
		product_name TEXT,
		fact_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		plan_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		diff_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		refreshed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`, pgx.Identifier{s.cfg.DiffDetailTable}.Sanitize())

	if _, err := s.dbpool.Exec(s.ctx, detail); err != nil {
		return fmt.Errorf("error creating %s table: %v", s.cfg.DiffDetailTable, err)
	}

	total := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		department TEXT NOT NULL,
		product_num TEXT NOT NULL,
		anchor_day DATE NOT NULL,
		product_name TEXT,
		fact_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		plan_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		diff_qty NUMERIC(18, 6) NOT NULL DEFAULT 0,
		refreshed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`, pgx.Identifier{s.cfg.DiffTotalTable}.Sanitize())

	if _, err := s.dbpool.Exec(s.ctx, total); err != nil {
		return fmt.Errorf("error creating %s table: %v", s.cfg.DiffTotalTable, err)
	}

	return nil
}

func (s *PostgresStore) CreateRunsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS etl_runs (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		pipeline VARCHAR(100) NOT NULL,
		period_from DATE NOT NULL,
		period_to DATE NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
		checksum VARCHAR(64),
		fetched INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		aggregated INTEGER NOT NULL DEFAULT 0,
		upserted INTEGER NOT NULL DEFAULT 0,
		detail_rows INTEGER NOT NULL DEFAULT 0,
		total_rows INTEGER NOT NULL DEFAULT 0,
		errors jsonb
	);`

	_, err := s.dbpool.Exec(s.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating etl_runs table: %v", err)
	}

	return nil
}

// RefreshLifecycle invokes the stored procedure that repopulates the plan
// snapshot. The procedure is owned outside this repository.
func (s *PostgresStore) RefreshLifecycle() error {
	query := fmt.Sprintf(`CALL %s();`, pgx.Identifier{s.cfg.LifecycleProc}.Sanitize())

	if _, err := s.dbpool.Exec(s.ctx, query); err != nil {
		return fmt.Errorf("error refreshing lifecycle snapshot via %s: %v", s.cfg.LifecycleProc, err)
	}

	s.log.Infof("Lifecycle snapshot refreshed via %s", s.cfg.LifecycleProc)
	return nil
}
