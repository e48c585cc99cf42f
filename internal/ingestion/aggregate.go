package ingestion

import (
	"sort"

	"github.com/skylinefoods/stocktx/internal/models"
)

// identityKey is the comparable merge key of one ledger row. Exactly one of
// operatingDay and documentRef is populated, depending on the family.
type identityKey struct {
	family          models.KeyFamily
	department      string
	operatingDay    string
	productCode     string
	documentRef     string
	transactionKind string
}

// Aggregator collapses transaction records that share an identity key into
// one row, summing the turnover.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate folds the records into one AggregatedRow per identity key.
// hasDocument follows the resolved ledger schema: without a document column
// every record merges under the day-scoped key, document reference or not.
// When two records under one key disagree on a descriptive field, the later
// record wins. Output order is deterministic regardless of input order.
func (a *Aggregator) Aggregate(records []models.TransactionRecord, hasDocument bool) []models.AggregatedRow {
	accumulators := make(map[identityKey]*models.AggregatedRow)

	for i := range records {
		record := &records[i]
		key := keyFor(record, hasDocument)

		row, ok := accumulators[key]
		if !ok {
			row = &models.AggregatedRow{Family: key.family}
			accumulators[key] = row
		}

		row.Department = record.Department
		row.OperatingDay = record.OperatingDay
		row.ProductCode = record.ProductCode
		row.ProductName = record.ProductName
		row.ProductType = record.ProductType
		row.MeasureUnit = record.MeasureUnit
		row.TransactionKind = record.TransactionKind
		if key.family == models.DocumentScoped {
			row.DocumentRef = record.DocumentRef
		} else {
			row.DocumentRef = nil
		}
		row.Turnover = row.Turnover.Add(record.Turnover)
	}

	rows := make([]models.AggregatedRow, 0, len(accumulators))
	for _, row := range accumulators {
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return lessRow(&rows[i], &rows[j])
	})

	return rows
}

// keyFor picks the identity family per record. Document-scoped keys carry no
// operating day: re-reporting a document under a new day must merge, not
// duplicate.
func keyFor(record *models.TransactionRecord, hasDocument bool) identityKey {
	if hasDocument && record.DocumentRef != nil && *record.DocumentRef != "" {
		return identityKey{
			family:          models.DocumentScoped,
			department:      record.Department,
			productCode:     record.ProductCode,
			documentRef:     *record.DocumentRef,
			transactionKind: deref(record.TransactionKind),
		}
	}

	return identityKey{
		family:          models.DayScoped,
		department:      record.Department,
		operatingDay:    record.OperatingDay.Format("2006-01-02"),
		productCode:     record.ProductCode,
		transactionKind: deref(record.TransactionKind),
	}
}

func lessRow(a, b *models.AggregatedRow) bool {
	if a.Family != b.Family {
		return a.Family < b.Family
	}
	if a.Department != b.Department {
		return a.Department < b.Department
	}
	if !a.OperatingDay.Equal(b.OperatingDay) {
		return a.OperatingDay.Before(b.OperatingDay)
	}
	if a.ProductCode != b.ProductCode {
		return a.ProductCode < b.ProductCode
	}
	if docA, docB := deref(a.DocumentRef), deref(b.DocumentRef); docA != docB {
		return docA < docB
	}
	return deref(a.TransactionKind) < deref(b.TransactionKind)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
