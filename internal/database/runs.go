package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/skylinefoods/stocktx/internal/models"
)

// InsertRunRecord opens a PROCESSING row for the run and returns its id.
func (s *PostgresStore) InsertRunRecord(runID, pipeline string, periodFrom, periodTo time.Time, checksum string) (int, error) {
	query := `
	INSERT INTO etl_runs (run_id, pipeline, period_from, period_to, started_at, status, checksum)
	VALUES ($1, $2, $3, $4, now(), $5, $6)
	RETURNING id;`

	var recordID int
	err := s.dbpool.QueryRow(s.ctx, query, runID, pipeline, periodFrom, periodTo, models.StatusProcessing, checksum).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("error inserting run record: %v", err)
	}

	return recordID, nil
}

// FinalizeRun closes the run record with its terminal status and counters.
// runErrors is stored as jsonb; pass nil for a clean run.
func (s *PostgresStore) FinalizeRun(recordID int, status string, summary models.RunSummary, runErrors any) error {
	query := `
	UPDATE etl_runs
	SET finished_at = now(),
		status = $2,
		fetched = $3,
		dropped = $4,
		aggregated = $5,
		upserted = $6,
		detail_rows = $7,
		total_rows = $8,
		errors = $9
	WHERE id = $1;`

	_, err := s.dbpool.Exec(s.ctx, query, recordID, status,
		summary.Fetched, summary.Dropped, summary.Aggregated, summary.Upserted, summary.DetailRows, summary.TotalRows, runErrors)
	if err != nil {
		return fmt.Errorf("error finalizing run record %d: %v", recordID, err)
	}

	return nil
}

// IsPayloadAlreadyProcessed reports whether a clean completed run already
// ingested this exact payload for the same pipeline and period.
func (s *PostgresStore) IsPayloadAlreadyProcessed(pipeline, checksum string, periodFrom, periodTo time.Time) (bool, error) {
	query := `
	SELECT id
	FROM etl_runs
	WHERE pipeline = $1 AND checksum = $2 AND period_from = $3 AND period_to = $4 AND status = $5
	LIMIT 1;`

	var recordID int
	err := s.dbpool.QueryRow(s.ctx, query, pipeline, checksum, periodFrom, periodTo, models.StatusDone).Scan(&recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error checking for a processed payload: %v", err)
	}

	return true, nil
}

// ListRuns returns the most recent run records, newest first.
func (s *PostgresStore) ListRuns(limit int) ([]models.RunRecord, error) {
	query := `
	SELECT id, run_id, pipeline, period_from, period_to, status, COALESCE(checksum, ''),
		fetched, dropped, aggregated, upserted, detail_rows, total_rows, started_at, finished_at
	FROM etl_runs
	ORDER BY id DESC
	LIMIT $1;`

	rows, err := s.dbpool.Query(s.ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %v", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var record models.RunRecord
		err := rows.Scan(&record.ID, &record.RunID, &record.Pipeline, &record.PeriodFrom, &record.PeriodTo, &record.Status, &record.Checksum,
			&record.Fetched, &record.Dropped, &record.Aggregated, &record.Upserted, &record.DetailRows, &record.TotalRows, &record.StartedAt, &record.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning run record: %v", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %v", err)
	}

	return records, nil
}
