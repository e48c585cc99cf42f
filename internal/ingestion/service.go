package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skylinefoods/stocktx/internal/database"
	"github.com/skylinefoods/stocktx/internal/models"
)

// Pipeline names this pipeline in run records.
const Pipeline = "stock_tx"

// Fetcher pulls the raw transactions report for one period.
type Fetcher interface {
	FetchTransactions(ctx context.Context, from, to time.Time) ([]models.ReportRow, string, error)
}

// PipelineConfig carries the parameters of one execution.
type PipelineConfig struct {
	PeriodFrom    time.Time
	PeriodTo      time.Time
	LifecycleProc string
}

type PipelineService struct {
	store      database.Store
	fetcher    Fetcher
	normalizer *Normalizer
	aggregator *Aggregator
	cfg        PipelineConfig
	log        *logrus.Logger
}

func NewPipelineService(store database.Store, fetcher Fetcher, normalizer *Normalizer, aggregator *Aggregator, cfg PipelineConfig, log *logrus.Logger) *PipelineService {
	return &PipelineService{
		store:      store,
		fetcher:    fetcher,
		normalizer: normalizer,
		aggregator: aggregator,
		cfg:        cfg,
		log:        log,
	}
}

// Execute runs the whole pipeline once: fetch, merge into the ledger,
// refresh the plan snapshot, rebuild the discrepancy tables. Every run that
// gets as far as a run record finalizes it, whatever happens afterwards.
func (p *PipelineService) Execute(ctx context.Context) (models.RunSummary, error) {
	started := time.Now()
	summary := models.RunSummary{
		RunID:      uuid.New().String(),
		Pipeline:   Pipeline,
		PeriodFrom: p.cfg.PeriodFrom,
		PeriodTo:   p.cfg.PeriodTo,
	}
	logger := p.log.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"pipeline": summary.Pipeline,
	})

	// Step 0: Resolve the destination schema once for the whole run.
	schema, err := p.store.IntrospectSchema()
	if err != nil {
		return summary, err
	}

	// Step 1: Pull the raw report for the period.
	logger.Infof("Fetching transactions report for %s..%s",
		summary.PeriodFrom.Format("2006-01-02"), summary.PeriodTo.Format("2006-01-02"))
	rows, payloadChecksum, err := p.fetcher.FetchTransactions(ctx, p.cfg.PeriodFrom, p.cfg.PeriodTo)
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(rows)

	// Step 2: Open the run record. From here on the record always gets a
	// terminal status.
	recordID, err := p.store.InsertRunRecord(summary.RunID, summary.Pipeline, summary.PeriodFrom, summary.PeriodTo, payloadChecksum)
	if err != nil {
		return summary, err
	}

	runErr := p.executeStages(logger, schema, rows, payloadChecksum, &summary)

	// Step 5: Close the run record.
	status := models.StatusDone
	var runErrors any
	if runErr != nil {
		status = models.StatusFatal
		runErrors = []string{runErr.Error()}
	} else if summary.Dropped > 0 {
		status = models.StatusDoneWithErrors
		runErrors = []string{fmt.Sprintf("%d report rows dropped during normalization", summary.Dropped)}
	}

	summary.Duration = time.Since(started)
	if err := p.store.FinalizeRun(recordID, status, summary, runErrors); err != nil {
		logger.Warnf("Failed to finalize run record %d: %v", recordID, err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.WithFields(logrus.Fields{
		"status":      status,
		"fetched":     summary.Fetched,
		"dropped":     summary.Dropped,
		"aggregated":  summary.Aggregated,
		"upserted":    summary.Upserted,
		"detail_rows": summary.DetailRows,
		"total_rows":  summary.TotalRows,
		"duration":    summary.Duration.String(),
	}).Info("Run finished")

	return summary, runErr
}

func (p *PipelineService) executeStages(logger *logrus.Entry, schema *database.SchemaSnapshot, rows []models.ReportRow, payloadChecksum string, summary *models.RunSummary) error {
	// Step 3: Merge the report into the ledger, unless this exact payload
	// already went through cleanly for the same period.
	processed, err := p.store.IsPayloadAlreadyProcessed(Pipeline, payloadChecksum, p.cfg.PeriodFrom, p.cfg.PeriodTo)
	if err != nil {
		return err
	}

	if processed {
		summary.UpsertSkipped = true
		logger.Info("Payload unchanged since last completed run, skipping ledger upsert")
	} else {
		records, dropped := p.normalizer.Normalize(rows)
		summary.Dropped = dropped

		aggregated := p.aggregator.Aggregate(records, schema.HasDocument)
		summary.Aggregated = len(aggregated)

		upserted, err := p.store.UpsertLedgerRows(schema, aggregated)
		if err != nil {
			return err
		}
		summary.Upserted = upserted
	}

	// Step 4: Refresh the plan snapshot, then rebuild the discrepancy
	// tables. The rebuild runs even when the upsert was skipped: anchors
	// change out of band.
	if p.cfg.LifecycleProc != "" {
		if err := p.store.RefreshLifecycle(); err != nil {
			return err
		}
	}

	detailRows, totalRows, err := p.store.RebuildDiffTables(schema)
	if err != nil {
		return err
	}
	summary.DetailRows = detailRows
	summary.TotalRows = totalRows

	return nil
}
