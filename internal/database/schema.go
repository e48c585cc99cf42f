package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/skylinefoods/stocktx/internal/models"
)

// Column names the engine accepts for each semantic field. Deployments have
// drifted: the first candidate present on the table wins.
var (
	turnoverCandidates = []string{"turnover", "store_in_out", "amount_store_in_out", "amount"}
	factCandidates     = []string{"fact_qty", "fact_quantity"}
	planCandidates     = []string{"plan_qty", "plan_quantity", "closing_qty"}
	diffCandidates     = []string{"diff_qty", "diff_quantity"}
)

// SchemaSnapshot is the resolved destination schema for one run. It is built
// once per run and handed to every downstream component; nothing re-reads the
// catalog per row.
type SchemaSnapshot struct {
	TurnoverColumn string
	HasDocument    bool
	Diff           DiffColumns
}

// DiffColumns maps the quantity columns of the two discrepancy tables.
type DiffColumns struct {
	DetailFact string
	DetailPlan string
	DetailDiff string
	TotalFact  string
	TotalPlan  string
	TotalDiff  string
}

// TableColumns returns the existing column names of a public table.
func (s *PostgresStore) TableColumns(table string) (map[string]bool, error) {
	query := `
	SELECT column_name
	FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name = $1;`

	rows, err := s.dbpool.Query(s.ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("error reading columns of %s: %v", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning column name: %v", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return columns, nil
}

func resolveColumn(table string, columns map[string]bool, candidates []string) (string, error) {
	for _, candidate := range candidates {
		if columns[candidate] {
			return candidate, nil
		}
	}
	return "", &models.SchemaMismatchError{Table: table, Candidates: candidates}
}

// IntrospectSchema resolves the drifted column names of the ledger and the
// two discrepancy tables. A missing turnover candidate fails the run here,
// before anything is written.
func (s *PostgresStore) IntrospectSchema() (*SchemaSnapshot, error) {
	ledgerColumns, err := s.TableColumns(s.cfg.LedgerTable)
	if err != nil {
		return nil, err
	}

	turnover, err := resolveColumn(s.cfg.LedgerTable, ledgerColumns, turnoverCandidates)
	if err != nil {
		return nil, err
	}

	snapshot := &SchemaSnapshot{
		TurnoverColumn: turnover,
		HasDocument:    ledgerColumns["document"],
	}

	detailColumns, err := s.TableColumns(s.cfg.DiffDetailTable)
	if err != nil {
		return nil, err
	}
	if snapshot.Diff.DetailFact, err = resolveColumn(s.cfg.DiffDetailTable, detailColumns, factCandidates); err != nil {
		return nil, err
	}
	if snapshot.Diff.DetailPlan, err = resolveColumn(s.cfg.DiffDetailTable, detailColumns, planCandidates); err != nil {
		return nil, err
	}
	if snapshot.Diff.DetailDiff, err = resolveColumn(s.cfg.DiffDetailTable, detailColumns, diffCandidates); err != nil {
		return nil, err
	}

	totalColumns, err := s.TableColumns(s.cfg.DiffTotalTable)
	if err != nil {
		return nil, err
	}
	if snapshot.Diff.TotalFact, err = resolveColumn(s.cfg.DiffTotalTable, totalColumns, factCandidates); err != nil {
		return nil, err
	}
	if snapshot.Diff.TotalPlan, err = resolveColumn(s.cfg.DiffTotalTable, totalColumns, planCandidates); err != nil {
		return nil, err
	}
	if snapshot.Diff.TotalDiff, err = resolveColumn(s.cfg.DiffTotalTable, totalColumns, diffCandidates); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"turnover_column": snapshot.TurnoverColumn,
		"has_document":    snapshot.HasDocument,
	}).Info("Resolved destination schema")

	return snapshot, nil
}
