package ingestion

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skylinefoods/stocktx/internal/database"
	"github.com/skylinefoods/stocktx/internal/models"
)

// MockStore is a mock implementation of the database.Store interface. The
// Create and report methods are plain stubs: the pipeline never touches them.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateLedgerTable() error { return nil }
func (m *MockStore) CreateAnchorTable() error { return nil }
func (m *MockStore) CreateDiffTables() error  { return nil }
func (m *MockStore) CreateRunsTable() error   { return nil }

func (m *MockStore) IntrospectSchema() (*database.SchemaSnapshot, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.SchemaSnapshot), args.Error(1)
}

func (m *MockStore) UpsertLedgerRows(schema *database.SchemaSnapshot, rows []models.AggregatedRow) (int, error) {
	args := m.Called(schema, rows)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) RefreshLifecycle() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) RebuildDiffTables(schema *database.SchemaSnapshot) (int, int, error) {
	args := m.Called(schema)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockStore) InsertRunRecord(runID, pipeline string, periodFrom, periodTo time.Time, checksum string) (int, error) {
	args := m.Called(runID, pipeline, periodFrom, periodTo, checksum)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) FinalizeRun(recordID int, status string, summary models.RunSummary, runErrors any) error {
	args := m.Called(recordID, status, summary, runErrors)
	return args.Error(0)
}

func (m *MockStore) IsPayloadAlreadyProcessed(pipeline, checksum string, periodFrom, periodTo time.Time) (bool, error) {
	args := m.Called(pipeline, checksum, periodFrom, periodTo)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListRuns(limit int) ([]models.RunRecord, error) { return nil, nil }

func (m *MockStore) FetchDiffTotals(schema *database.SchemaSnapshot, filter database.DiffFilter) ([]models.DiffTotalRow, error) {
	return nil, nil
}

func (m *MockStore) FetchDiffDetails(schema *database.SchemaSnapshot, filter database.DiffFilter) ([]models.DiffDetailRow, error) {
	return nil, nil
}

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchTransactions(ctx context.Context, from, to time.Time) ([]models.ReportRow, string, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]models.ReportRow), args.String(1), args.Error(2)
}

func BuildTestPipeline() (*MockStore, *MockFetcher, PipelineConfig, *database.SchemaSnapshot, *PipelineService) {
	store := new(MockStore)
	fetcher := new(MockFetcher)

	cfg := PipelineConfig{
		PeriodFrom:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:      time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		LifecycleProc: "refresh_batch_lifecycle",
	}

	schema := &database.SchemaSnapshot{
		TurnoverColumn: "turnover",
		HasDocument:    true,
		Diff: database.DiffColumns{
			DetailFact: "fact_qty", DetailPlan: "plan_qty", DetailDiff: "diff_qty",
			TotalFact: "fact_qty", TotalPlan: "plan_qty", TotalDiff: "diff_qty",
		},
	}

	logg := logrus.New()
	logg.SetOutput(io.Discard)

	service := NewPipelineService(store, fetcher, NewNormalizer(logg), NewAggregator(), cfg, logg)
	return store, fetcher, cfg, schema, service
}

func reportRow(department, day, product string, turnover float64) models.ReportRow {
	return models.ReportRow{
		"Department":             department,
		"DateTime.DateTyped":     day,
		"Product.Num":            product,
		"Product.Name":           "Flour",
		"TransactionType":        "WRITEOFF",
		"Amount.StoreInOutTyped": turnover,
	}
}

func TestPipelineService_Execute(t *testing.T) {
	t.Run("Expect: Execute to run successfully", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{
			reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5),
			reportRow("Kitchen", "2024-03-01T00:00:00", "P2", 3),
		}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(42, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(2, nil).Once()
		store.On("RefreshLifecycle").Return(nil).Once()
		store.On("RebuildDiffTables", schema).Return(3, 1, nil).Once()
		store.On("FinalizeRun", 42, models.StatusDone, mock.Anything, mock.Anything).Return(nil).Once()

		summary, err := service.Execute(context.Background())

		if err != nil {
			t.Errorf("Did not expect an error, but got: %v", err)
		}
		assert.Equal(t, Pipeline, summary.Pipeline)
		assert.NotEmpty(t, summary.RunID)
		assert.Equal(t, 2, summary.Fetched)
		assert.Equal(t, 0, summary.Dropped)
		assert.Equal(t, 2, summary.Aggregated)
		assert.Equal(t, 2, summary.Upserted)
		assert.Equal(t, 3, summary.DetailRows)
		assert.Equal(t, 1, summary.TotalRows)
		assert.False(t, summary.UpsertSkipped)

		store.AssertExpectations(t)
		fetcher.AssertExpectations(t)
	})

	t.Run("Expect: No fetch when the schema introspection fails", func(t *testing.T) {
		store, fetcher, _, _, service := BuildTestPipeline()
		store.On("IntrospectSchema").Return(nil, errors.New("schema error")).Once()

		_, err := service.Execute(context.Background())

		if err == nil {
			t.Errorf("Expected an error, but got nil")
		}
		store.AssertExpectations(t)
		fetcher.AssertNotCalled(t, "FetchTransactions", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: No run record when the fetch fails", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(nil, "", errors.New("fetch error")).Once()

		_, err := service.Execute(context.Background())

		if err == nil {
			t.Errorf("Expected an error, but got nil")
		}
		fetcher.AssertExpectations(t)
		store.AssertNotCalled(t, "InsertRunRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: Ledger upsert to be skipped for an already processed payload", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5)}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(7, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(true, nil).Once()
		store.On("RefreshLifecycle").Return(nil).Once()
		store.On("RebuildDiffTables", schema).Return(0, 0, nil).Once()
		store.On("FinalizeRun", 7, models.StatusDone, mock.Anything, mock.Anything).Return(nil).Once()

		summary, err := service.Execute(context.Background())

		assert.NoError(t, err)
		assert.True(t, summary.UpsertSkipped)
		assert.Equal(t, 0, summary.Aggregated)

		store.AssertExpectations(t)
		store.AssertNotCalled(t, "UpsertLedgerRows", mock.Anything, mock.Anything)
	})

	t.Run("Expect: FATAL status when the ledger upsert fails", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5)}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(8, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(0, errors.New("write failed")).Once()
		store.On("FinalizeRun", 8, models.StatusFatal, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := service.Execute(context.Background())

		if err == nil {
			t.Errorf("Expected an error, but got nil")
		}
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "RefreshLifecycle")
		store.AssertNotCalled(t, "RebuildDiffTables", mock.Anything)
	})

	t.Run("Expect: Lifecycle refresh to be skipped when no procedure is configured", func(t *testing.T) {
		store, fetcher, cfg, schema, _ := BuildTestPipeline()
		cfg.LifecycleProc = ""
		logg := logrus.New()
		logg.SetOutput(io.Discard)
		service := NewPipelineService(store, fetcher, NewNormalizer(logg), NewAggregator(), cfg, logg)

		rows := []models.ReportRow{reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5)}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(9, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(1, nil).Once()
		store.On("RebuildDiffTables", schema).Return(0, 0, nil).Once()
		store.On("FinalizeRun", 9, models.StatusDone, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := service.Execute(context.Background())

		assert.NoError(t, err)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "RefreshLifecycle")
	})

	t.Run("Expect: DONE_WITH_ERRORS status when report rows were dropped", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{
			reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5),
			{"Product.Num": "P9", "Amount.StoreInOutTyped": 1.0},
		}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(10, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(1, nil).Once()
		store.On("RefreshLifecycle").Return(nil).Once()
		store.On("RebuildDiffTables", schema).Return(0, 0, nil).Once()
		store.On("FinalizeRun", 10, models.StatusDoneWithErrors, mock.Anything, mock.Anything).Return(nil).Once()

		summary, err := service.Execute(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 2, summary.Fetched)
		assert.Equal(t, 1, summary.Dropped)
		store.AssertExpectations(t)
	})

	t.Run("Expect: FATAL status when the rebuild fails", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5)}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(11, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(1, nil).Once()
		store.On("RefreshLifecycle").Return(nil).Once()
		store.On("RebuildDiffTables", schema).Return(0, 0, errors.New("rebuild failed")).Once()
		store.On("FinalizeRun", 11, models.StatusFatal, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := service.Execute(context.Background())

		if err == nil {
			t.Errorf("Expected an error, but got nil")
		}
		store.AssertExpectations(t)
	})

	t.Run("Expect: Finalize failure to surface on an otherwise clean run", func(t *testing.T) {
		store, fetcher, cfg, schema, service := BuildTestPipeline()
		rows := []models.ReportRow{reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5)}

		store.On("IntrospectSchema").Return(schema, nil).Once()
		fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
		store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(12, nil).Once()
		store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
		store.On("UpsertLedgerRows", schema, mock.Anything).Return(1, nil).Once()
		store.On("RefreshLifecycle").Return(nil).Once()
		store.On("RebuildDiffTables", schema).Return(0, 0, nil).Once()
		store.On("FinalizeRun", 12, models.StatusDone, mock.Anything, mock.Anything).Return(errors.New("update failed")).Once()

		_, err := service.Execute(context.Background())

		if err == nil {
			t.Errorf("Expected an error, but got nil")
		}
		store.AssertExpectations(t)
	})
}

// Guards against the aggregated batch silently changing shape: the upsert
// must receive exactly one row per identity key with the turnovers summed.
func TestPipelineService_Execute_PassesAggregatedRows(t *testing.T) {
	store, fetcher, cfg, schema, service := BuildTestPipeline()
	rows := []models.ReportRow{
		reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 10),
		reportRow("Kitchen", "2024-03-01T00:00:00", "P1", -2),
		reportRow("Kitchen", "2024-03-01T00:00:00", "P1", 5),
	}

	var captured []models.AggregatedRow
	store.On("IntrospectSchema").Return(schema, nil).Once()
	fetcher.On("FetchTransactions", mock.Anything, cfg.PeriodFrom, cfg.PeriodTo).Return(rows, "abc123", nil).Once()
	store.On("InsertRunRecord", mock.AnythingOfType("string"), Pipeline, cfg.PeriodFrom, cfg.PeriodTo, "abc123").Return(13, nil).Once()
	store.On("IsPayloadAlreadyProcessed", Pipeline, "abc123", cfg.PeriodFrom, cfg.PeriodTo).Return(false, nil).Once()
	store.On("UpsertLedgerRows", schema, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).([]models.AggregatedRow)
	}).Return(1, nil).Once()
	store.On("RefreshLifecycle").Return(nil).Once()
	store.On("RebuildDiffTables", schema).Return(0, 0, nil).Once()
	store.On("FinalizeRun", 13, models.StatusDone, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := service.Execute(context.Background())

	assert.NoError(t, err)
	assert.Len(t, captured, 1)
	assert.True(t, captured[0].Turnover.Equal(decimal.NewFromInt(13)), "expected summed turnover 13, got %s", captured[0].Turnover)
	store.AssertExpectations(t)
}
