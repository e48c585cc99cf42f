package database

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/skylinefoods/stocktx/internal/models"
	"github.com/skylinefoods/stocktx/internal/recon"
)

// RebuildDiffTables discards and recomputes both discrepancy tables from the
// current anchor facts and lifecycle plans. The whole rebuild runs inside one
// repeatable-read transaction, so readers never observe a half-built state
// and the snapshot cannot mix two generations of a mid-edit anchor table.
func (s *PostgresStore) RebuildDiffTables(schema *SchemaSnapshot) (int, int, error) {
	tx, err := s.dbpool.BeginTx(s.ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, 0, fmt.Errorf("error beginning transaction: %v", err)
	}
	defer tx.Rollback(s.ctx)

	facts, err := s.fetchAnchorFacts(tx)
	if err != nil {
		return 0, 0, err
	}

	detailTable := pgx.Identifier{s.cfg.DiffDetailTable}.Sanitize()
	totalTable := pgx.Identifier{s.cfg.DiffTotalTable}.Sanitize()
	if _, err := tx.Exec(s.ctx, fmt.Sprintf("TRUNCATE TABLE %s, %s;", detailTable, totalTable)); err != nil {
		return 0, 0, fmt.Errorf("error truncating discrepancy tables: %v", err)
	}

	if len(facts) == 0 {
		if err := tx.Commit(s.ctx); err != nil {
			return 0, 0, fmt.Errorf("error committing transaction: %v", err)
		}
		s.log.Info("No production facts recorded, discrepancy tables cleared")
		return 0, 0, nil
	}

	plans, err := s.fetchPlansForAnchors(tx)
	if err != nil {
		return 0, 0, err
	}

	details, totals := recon.BuildDiff(facts, plans)

	if err := s.copyDiffDetails(tx, schema, details); err != nil {
		return 0, 0, err
	}
	if err := s.copyDiffTotals(tx, schema, totals); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(s.ctx); err != nil {
		return 0, 0, fmt.Errorf("error committing transaction: %v", err)
	}

	return len(details), len(totals), nil
}

func (s *PostgresStore) fetchAnchorFacts(tx pgx.Tx) ([]models.AnchorFact, error) {
	query := fmt.Sprintf(`
	SELECT department, product_num, anchor_day, production_day, fact_qty, product_name
	FROM %s
	ORDER BY department, product_num, anchor_day, production_day;`, pgx.Identifier{s.cfg.AnchorTable}.Sanitize())

	rows, err := tx.Query(s.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error reading anchor facts: %v", err)
	}
	defer rows.Close()

	var facts []models.AnchorFact
	for rows.Next() {
		var fact models.AnchorFact
		if err := rows.Scan(&fact.Department, &fact.ProductCode, &fact.AnchorDay, &fact.ProductionDay, &fact.FactQty, &fact.ProductName); err != nil {
			return nil, fmt.Errorf("error scanning anchor fact: %v", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return facts, nil
}

// fetchPlansForAnchors loads only lifecycle rows whose (department, product,
// snapshot day) matches some anchor. Plans outside every anchored scope take
// no part in the rebuild.
func (s *PostgresStore) fetchPlansForAnchors(tx pgx.Tx) ([]models.LifecyclePlanRow, error) {
	query := fmt.Sprintf(`
	SELECT l.department, l.product_num, l.snapshot_day, l.production_day, l.opening_qty, l.closing_qty, l.batch_status
	FROM %s l
	WHERE EXISTS (
		SELECT 1 FROM %s a
		WHERE a.department = l.department
		  AND a.product_num = l.product_num
		  AND a.anchor_day = l.snapshot_day
	)
	ORDER BY l.department, l.product_num, l.snapshot_day, l.production_day;`, pgx.Identifier{s.cfg.LifecycleTable}.Sanitize(), pgx.Identifier{s.cfg.AnchorTable}.Sanitize())

	rows, err := tx.Query(s.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error reading lifecycle plans: %v", err)
	}
	defer rows.Close()

	var plans []models.LifecyclePlanRow
	for rows.Next() {
		var plan models.LifecyclePlanRow
		if err := rows.Scan(&plan.Department, &plan.ProductCode, &plan.SnapshotDay, &plan.ProductionDay, &plan.OpeningQty, &plan.ClosingQty, &plan.BatchStatus); err != nil {
			return nil, fmt.Errorf("error scanning lifecycle plan: %v", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return plans, nil
}

func (s *PostgresStore) copyDiffDetails(tx pgx.Tx, schema *SchemaSnapshot, details []models.DiffDetailRow) error {
	copyCount, err := tx.CopyFrom(
		s.ctx,
		pgx.Identifier{s.cfg.DiffDetailTable},
		[]string{"department", "product_num", "anchor_day", "production_day", "product_name", schema.Diff.DetailFact, schema.Diff.DetailPlan, schema.Diff.DetailDiff},
		pgx.CopyFromSlice(len(details), func(i int) ([]any, error) {
			d := details[i]
			return []any{d.Department, d.ProductCode, d.AnchorDay, d.ProductionDay, d.ProductName, d.FactQty, d.PlanQty, d.DiffQty}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("error copying discrepancy details: %v", err)
	}
	if int(copyCount) != len(details) {
		return fmt.Errorf("error copying discrepancy details: copied %d of %d rows", copyCount, len(details))
	}
	return nil
}

func (s *PostgresStore) copyDiffTotals(tx pgx.Tx, schema *SchemaSnapshot, totals []models.DiffTotalRow) error {
	copyCount, err := tx.CopyFrom(
		s.ctx,
		pgx.Identifier{s.cfg.DiffTotalTable},
		[]string{"department", "product_num", "anchor_day", "product_name", schema.Diff.TotalFact, schema.Diff.TotalPlan, schema.Diff.TotalDiff},
		pgx.CopyFromSlice(len(totals), func(i int) ([]any, error) {
			t := totals[i]
			return []any{t.Department, t.ProductCode, t.AnchorDay, t.ProductName, t.FactQty, t.PlanQty, t.DiffQty}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("error copying discrepancy totals: %v", err)
	}
	if int(copyCount) != len(totals) {
		return fmt.Errorf("error copying discrepancy totals: copied %d of %d rows", copyCount, len(totals))
	}
	return nil
}
