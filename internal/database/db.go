package database

import (
	"time"

	"github.com/skylinefoods/stocktx/internal/models"
)

type Store interface {
	CreateLedgerTable() error
	CreateAnchorTable() error
	CreateDiffTables() error
	CreateRunsTable() error
	IntrospectSchema() (*SchemaSnapshot, error)
	UpsertLedgerRows(schema *SchemaSnapshot, rows []models.AggregatedRow) (int, error)
	RefreshLifecycle() error
	RebuildDiffTables(schema *SchemaSnapshot) (int, int, error)
	InsertRunRecord(runID, pipeline string, periodFrom, periodTo time.Time, checksum string) (int, error)
	FinalizeRun(recordID int, status string, summary models.RunSummary, runErrors any) error
	IsPayloadAlreadyProcessed(pipeline, checksum string, periodFrom, periodTo time.Time) (bool, error)
	ListRuns(limit int) ([]models.RunRecord, error)
	FetchDiffTotals(schema *SchemaSnapshot, filter DiffFilter) ([]models.DiffTotalRow, error)
	FetchDiffDetails(schema *SchemaSnapshot, filter DiffFilter) ([]models.DiffDetailRow, error)
}
