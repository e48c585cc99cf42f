package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run statuses recorded in the etl_runs table.
const (
	StatusProcessing     = "PROCESSING"
	StatusDone           = "DONE"
	StatusDoneWithErrors = "DONE_WITH_ERRORS"
	StatusFatal          = "FATAL"
)

// ReportRow is one raw row of the POS OLAP transactions report. Keys are the
// report's dotted field identifiers; values can be strings, numbers or null.
type ReportRow map[string]any

// TransactionRecord is a normalized report row. Nullable fields stay nil when
// the source value is missing or empty: identity-key selection depends on
// true absence of the document reference.
type TransactionRecord struct {
	Department      string
	OperatingDay    time.Time
	ProductCode     string
	ProductName     *string
	ProductType     *string
	MeasureUnit     *string
	DocumentRef     *string
	TransactionKind *string
	Turnover        decimal.Decimal
}

// KeyFamily selects the conflict key a ledger row is merged under.
type KeyFamily int

const (
	DayScoped KeyFamily = iota
	DocumentScoped
)

func (f KeyFamily) String() string {
	if f == DocumentScoped {
		return "document"
	}
	return "day"
}

// AggregatedRow is one ledger-bound row per identity key within a run.
// Turnover is the sum across every record that shared the key.
type AggregatedRow struct {
	Family          KeyFamily
	Department      string
	OperatingDay    time.Time
	ProductCode     string
	ProductName     *string
	ProductType     *string
	MeasureUnit     *string
	DocumentRef     *string
	TransactionKind *string
	Turnover        decimal.Decimal
}

// AnchorFact is a hand-entered true quantity for a production batch. The
// engine only ever reads these.
type AnchorFact struct {
	Department    string
	ProductCode   string
	AnchorDay     time.Time
	ProductionDay time.Time
	FactQty       decimal.Decimal
	ProductName   *string
}

// LifecyclePlanRow is one row of the externally refreshed plan snapshot.
// ClosingQty is the quantity compared against the anchor fact.
type LifecyclePlanRow struct {
	Department    string
	ProductCode   string
	SnapshotDay   time.Time
	ProductionDay time.Time
	OpeningQty    *decimal.Decimal
	ClosingQty    decimal.Decimal
	BatchStatus   *string
}

// DiffDetailRow is one rebuilt discrepancy row per production batch.
type DiffDetailRow struct {
	Department    string          `json:"department"`
	ProductCode   string          `json:"product_num"`
	AnchorDay     time.Time       `json:"anchor_day"`
	ProductionDay time.Time       `json:"production_day"`
	ProductName   *string         `json:"product_name,omitempty"`
	FactQty       decimal.Decimal `json:"fact_qty"`
	PlanQty       decimal.Decimal `json:"plan_qty"`
	DiffQty       decimal.Decimal `json:"diff_qty"`
}

// DiffTotalRow aggregates detail rows per product and anchor day.
type DiffTotalRow struct {
	Department  string          `json:"department"`
	ProductCode string          `json:"product_num"`
	AnchorDay   time.Time       `json:"anchor_day"`
	ProductName *string         `json:"product_name,omitempty"`
	FactQty     decimal.Decimal `json:"fact_qty"`
	PlanQty     decimal.Decimal `json:"plan_qty"`
	DiffQty     decimal.Decimal `json:"diff_qty"`
}

// RunSummary reports what a single pipeline run did.
type RunSummary struct {
	RunID         string
	Pipeline      string
	PeriodFrom    time.Time
	PeriodTo      time.Time
	Fetched       int
	Dropped       int
	Aggregated    int
	Upserted      int
	UpsertSkipped bool
	DetailRows    int
	TotalRows     int
	Duration      time.Duration
}

// RunRecord mirrors one etl_runs row for the reporting API.
type RunRecord struct {
	ID         int        `json:"id"`
	RunID      string     `json:"run_id"`
	Pipeline   string     `json:"pipeline"`
	PeriodFrom time.Time  `json:"period_from"`
	PeriodTo   time.Time  `json:"period_to"`
	Status     string     `json:"status"`
	Checksum   string     `json:"checksum,omitempty"`
	Fetched    int        `json:"fetched"`
	Dropped    int        `json:"dropped"`
	Aggregated int        `json:"aggregated"`
	Upserted   int        `json:"upserted"`
	DetailRows int        `json:"detail_rows"`
	TotalRows  int        `json:"total_rows"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
