package ingestion

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/skylinefoods/stocktx/internal/config"
	"github.com/skylinefoods/stocktx/internal/database"
	"github.com/skylinefoods/stocktx/internal/pos"
)

// Setup wires pipeline runs from configuration. Keeping the wiring out of
// the service leaves the service constructable with test doubles.
type Setup struct {
	pool *pgxpool.Pool
	cfg  *config.Config
	log  *logrus.Logger
}

func NewSetup(pool *pgxpool.Pool, cfg *config.Config, log *logrus.Logger) *Setup {
	return &Setup{pool: pool, cfg: cfg, log: log}
}

func (s *Setup) storeConfig() database.StoreConfig {
	return database.StoreConfig{
		LedgerTable:     s.cfg.LedgerTable,
		AnchorTable:     s.cfg.AnchorTable,
		LifecycleTable:  s.cfg.LifecycleTable,
		DiffDetailTable: s.cfg.DiffDetailTable,
		DiffTotalTable:  s.cfg.DiffTotalTable,
		LifecycleProc:   s.cfg.LifecycleProc,
	}
}

// EnsureSchema creates every table the pipeline owns. The lifecycle table is
// not among them: the external snapshot procedure owns it.
func (s *Setup) EnsureSchema(ctx context.Context) error {
	store := database.NewPostgresStore(ctx, s.pool, s.storeConfig(), s.log)

	if err := store.CreateLedgerTable(); err != nil {
		return err
	}
	if err := store.CreateAnchorTable(); err != nil {
		return err
	}
	if err := store.CreateDiffTables(); err != nil {
		return err
	}
	return store.CreateRunsTable()
}

// BuildRun assembles one runnable pipeline for the period the configuration
// resolves right now. The store inherits ctx, so cancelling it cuts off
// every database call of the run.
func (s *Setup) BuildRun(ctx context.Context) (*PipelineService, error) {
	from, to, err := s.cfg.Period(time.Now())
	if err != nil {
		return nil, err
	}

	store := database.NewPostgresStore(ctx, s.pool, s.storeConfig(), s.log)
	fetcher := pos.NewClient(pos.ClientConfig{
		BaseURL:      s.cfg.POSBaseURL,
		Login:        s.cfg.POSLogin,
		Password:     s.cfg.POSPassword,
		Departments:  s.cfg.Departments,
		ProductCodes: s.cfg.ProductCodes,
	}, s.log)

	pipelineCfg := PipelineConfig{
		PeriodFrom:    from,
		PeriodTo:      to,
		LifecycleProc: s.cfg.LifecycleProc,
	}

	return NewPipelineService(store, fetcher, NewNormalizer(s.log), NewAggregator(), pipelineCfg, s.log), nil
}
