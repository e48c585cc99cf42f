package database

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/skylinefoods/stocktx/internal/models"
)

// DiffFilter narrows discrepancy queries. Zero values mean "no filter";
// From is inclusive, To exclusive, both against the anchor day.
type DiffFilter struct {
	Department  string
	ProductCode string
	From        *time.Time
	To          *time.Time
}

// FetchDiffTotals returns per-product discrepancy totals matching the filter.
func (s *PostgresStore) FetchDiffTotals(schema *SchemaSnapshot, filter DiffFilter) ([]models.DiffTotalRow, error) {
	query := fmt.Sprintf(`
	SELECT department, product_num, anchor_day, product_name, %s, %s, %s
	FROM %s
	WHERE ($1 = '' OR department = $1)
	  AND ($2 = '' OR product_num = $2)
	  AND ($3::date IS NULL OR anchor_day >= $3)
	  AND ($4::date IS NULL OR anchor_day < $4)
	ORDER BY department, product_num, anchor_day;`,
		pgx.Identifier{schema.Diff.TotalFact}.Sanitize(),
		pgx.Identifier{schema.Diff.TotalPlan}.Sanitize(),
		pgx.Identifier{schema.Diff.TotalDiff}.Sanitize(),
		pgx.Identifier{s.cfg.DiffTotalTable}.Sanitize())

	rows, err := s.dbpool.Query(s.ctx, query, filter.Department, filter.ProductCode, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("error querying discrepancy totals: %v", err)
	}
	defer rows.Close()

	var totals []models.DiffTotalRow
	for rows.Next() {
		var total models.DiffTotalRow
		if err := rows.Scan(&total.Department, &total.ProductCode, &total.AnchorDay, &total.ProductName, &total.FactQty, &total.PlanQty, &total.DiffQty); err != nil {
			return nil, fmt.Errorf("error scanning discrepancy total: %v", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return totals, nil
}

// FetchDiffDetails returns per-batch discrepancy rows matching the filter.
func (s *PostgresStore) FetchDiffDetails(schema *SchemaSnapshot, filter DiffFilter) ([]models.DiffDetailRow, error) {
	query := fmt.Sprintf(`
	SELECT department, product_num, anchor_day, production_day, product_name, %s, %s, %s
	FROM %s
	WHERE ($1 = '' OR department = $1)
	  AND ($2 = '' OR product_num = $2)
	  AND ($3::date IS NULL OR anchor_day >= $3)
	  AND ($4::date IS NULL OR anchor_day < $4)
	ORDER BY department, product_num, anchor_day, production_day;`,
		pgx.Identifier{schema.Diff.DetailFact}.Sanitize(),
		pgx.Identifier{schema.Diff.DetailPlan}.Sanitize(),
		pgx.Identifier{schema.Diff.DetailDiff}.Sanitize(),
		pgx.Identifier{s.cfg.DiffDetailTable}.Sanitize())

	rows, err := s.dbpool.Query(s.ctx, query, filter.Department, filter.ProductCode, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("error querying discrepancy details: %v", err)
	}
	defer rows.Close()

	var details []models.DiffDetailRow
	for rows.Next() {
		var detail models.DiffDetailRow
		if err := rows.Scan(&detail.Department, &detail.ProductCode, &detail.AnchorDay, &detail.ProductionDay, &detail.ProductName, &detail.FactQty, &detail.PlanQty, &detail.DiffQty); err != nil {
			return nil, fmt.Errorf("error scanning discrepancy detail: %v", err)
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return details, nil
}
