package database

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/skylinefoods/stocktx/internal/models"
)

// upsertStatements holds one parameterized statement per conflict-key family.
// The document statement is empty when the ledger has no document column.
type upsertStatements struct {
	document string
	day      string
}

// buildUpsertStatements assembles the two family statements against the
// resolved schema. All identifiers go through Sanitize; values are bound.
func buildUpsertStatements(table string, schema *SchemaSnapshot) upsertStatements {
	ledger := pgx.Identifier{table}.Sanitize()
	turnover := pgx.Identifier{schema.TurnoverColumn}.Sanitize()

	if !schema.HasDocument {
		// Legacy ledger without a document column: every row merges under the
		// day-scoped key and the plain conflict target.
		day := fmt.Sprintf(`
		INSERT INTO %s (department, oper_day, product_num, product_name, product_type, measure_unit, transaction_type, %s, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (department, oper_day, product_num, transaction_type)
		DO UPDATE SET
			product_name = EXCLUDED.product_name,
			product_type = EXCLUDED.product_type,
			measure_unit = EXCLUDED.measure_unit,
			%s = EXCLUDED.%s,
			updated_at = now();`, ledger, turnover, turnover, turnover)

		return upsertStatements{day: day}
	}

	// The document key carries no operating day: the same document can be
	// reported against a different day across runs, so the update overwrites
	// oper_day with the latest one seen.
	document := fmt.Sprintf(`
	INSERT INTO %s (department, oper_day, product_num, product_name, product_type, measure_unit, document, transaction_type, %s, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	ON CONFLICT (department, product_num, document, transaction_type) WHERE document IS NOT NULL
	DO UPDATE SET
		oper_day = EXCLUDED.oper_day,
		product_name = EXCLUDED.product_name,
		product_type = EXCLUDED.product_type,
		measure_unit = EXCLUDED.measure_unit,
		%s = EXCLUDED.%s,
		updated_at = now();`, ledger, turnover, turnover, turnover)

	// The day key owns oper_day, so the update never touches it.
	day := fmt.Sprintf(`
	INSERT INTO %s (department, oper_day, product_num, product_name, product_type, measure_unit, document, transaction_type, %s, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, now())
	ON CONFLICT (department, oper_day, product_num, transaction_type) WHERE document IS NULL
	DO UPDATE SET
		product_name = EXCLUDED.product_name,
		product_type = EXCLUDED.product_type,
		measure_unit = EXCLUDED.measure_unit,
		%s = EXCLUDED.%s,
		updated_at = now();`, ledger, turnover, turnover, turnover)

	return upsertStatements{document: document, day: day}
}

// UpsertLedgerRows merges the aggregated rows into the ledger, one
// transaction for the whole batch. Re-running with the same input leaves the
// ledger unchanged except for updated_at.
func (s *PostgresStore) UpsertLedgerRows(schema *SchemaSnapshot, rows []models.AggregatedRow) (int, error) {
	if len(rows) == 0 {
		s.log.Warn("No aggregated rows to upsert")
		return 0, nil
	}

	statements := buildUpsertStatements(s.cfg.LedgerTable, schema)

	tx, err := s.dbpool.Begin(s.ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %v", err)
	}
	defer tx.Rollback(s.ctx)

	written := 0
	for i := range rows {
		row := &rows[i]

		var execErr error
		switch row.Family {
		case models.DocumentScoped:
			if statements.document == "" {
				return 0, fmt.Errorf("document-scoped row for a ledger without a document column: %s / %s", row.Department, row.ProductCode)
			}
			_, execErr = tx.Exec(s.ctx, statements.document,
				row.Department, row.OperatingDay, row.ProductCode, row.ProductName, row.ProductType, row.MeasureUnit, row.DocumentRef, row.TransactionKind, row.Turnover)
		default:
			_, execErr = tx.Exec(s.ctx, statements.day,
				row.Department, row.OperatingDay, row.ProductCode, row.ProductName, row.ProductType, row.MeasureUnit, row.TransactionKind, row.Turnover)
		}

		if execErr != nil {
			return 0, fmt.Errorf("error upserting ledger row (%s, %s, %s): %w", row.Department, row.ProductCode, row.Family, execErr)
		}
		written++
	}

	if err := tx.Commit(s.ctx); err != nil {
		return 0, fmt.Errorf("error committing transaction: %v", err)
	}

	return written, nil
}
